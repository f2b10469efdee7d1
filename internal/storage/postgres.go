package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/codememory/pkg/types"
)

// PostgresStorage implements the Storage interface on PostgreSQL with pgvector
type PostgresStorage struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS code_embeddings (
    id UUID PRIMARY KEY,
    project_id TEXT NOT NULL,
    file_path VARCHAR(500) NOT NULL,
    chunk_index INTEGER NOT NULL CHECK (chunk_index >= 0),
    content TEXT NOT NULL,
    content_hash VARCHAR(64) NOT NULL,
    embedding_model TEXT NOT NULL DEFAULT '',
    language VARCHAR(50),
    embedding vector(%[1]d) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (project_id, file_path, chunk_index)
);

ALTER TABLE code_embeddings ADD COLUMN IF NOT EXISTS embedding_model TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_code_embeddings_project ON code_embeddings (project_id);
CREATE INDEX IF NOT EXISTS idx_code_embeddings_vector
    ON code_embeddings USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS project_memories (
    id UUID PRIMARY KEY,
    seq BIGINT GENERATED ALWAYS AS IDENTITY,
    project_id TEXT NOT NULL,
    ticket_id TEXT,
    memory_type VARCHAR(50) NOT NULL
        CHECK (memory_type IN ('execution_success', 'pattern', 'insight', 'feedback')),
    content JSONB NOT NULL,
    embedding vector(%[1]d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_project_memories_project ON project_memories (project_id, created_at DESC);

CREATE TABLE IF NOT EXISTS learned_patterns (
    id UUID PRIMARY KEY,
    project_id TEXT NOT NULL,
    pattern_type VARCHAR(100) NOT NULL,
    pattern_content JSONB NOT NULL,
    content_hash VARCHAR(64) NOT NULL,
    success_count INTEGER NOT NULL DEFAULT 1 CHECK (success_count >= 1),
    failure_count INTEGER NOT NULL DEFAULT 0 CHECK (failure_count >= 0),
    last_used_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (project_id, pattern_type, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_learned_patterns_project ON learned_patterns (project_id, success_count DESC);
`

// NewPostgresStorage connects to databaseURL and creates the schema if needed.
// dimension fixes the width of the vector columns.
func NewPostgresStorage(ctx context.Context, databaseURL string, maxConns int, dimension int) (*PostgresStorage, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(postgresSchema, dimension)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close releases the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// UpsertEmbedding inserts a chunk or updates the row at the same
// (project, file, chunk index), keeping its id.
func (s *PostgresStorage) UpsertEmbedding(ctx context.Context, chunk *types.CodeChunk) (string, error) {
	if err := chunk.Validate(); err != nil {
		return "", err
	}
	if chunk.ContentHash == "" {
		chunk.ComputeContentHash()
	}

	query := `
		INSERT INTO code_embeddings (
			id, project_id, file_path, chunk_index, content, content_hash,
			embedding_model, language, embedding, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (project_id, file_path, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			embedding_model = EXCLUDED.embedding_model,
			language = EXCLUDED.language,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
		RETURNING id::text
	`
	newID := uuid.NewString()
	now := time.Now().UTC()

	var id string
	err := s.pool.QueryRow(ctx, query,
		newID, chunk.ProjectID, chunk.FilePath, chunk.ChunkIndex, chunk.Content,
		chunk.ContentHash, chunk.EmbeddingModel, optionalText(chunk.Language), pgvector.NewVector(chunk.Embedding), now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert embedding: %w", err)
	}

	chunk.ID = id
	chunk.UpdatedAt = now
	if id == newID {
		chunk.CreatedAt = now
	}
	return id, nil
}

// GetChunkHashes returns the stored content hash and embedding model per
// chunk index of a file
func (s *PostgresStorage) GetChunkHashes(ctx context.Context, projectID, filePath string) (map[int]ChunkHash, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT chunk_index, content_hash, embedding_model FROM code_embeddings WHERE project_id = $1 AND file_path = $2",
		projectID, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[int]ChunkHash)
	for rows.Next() {
		var idx int
		var h ChunkHash
		if err := rows.Scan(&idx, &h.ContentHash, &h.EmbeddingModel); err != nil {
			return nil, fmt.Errorf("failed to scan chunk hash: %w", err)
		}
		hashes[idx] = h
	}
	return hashes, rows.Err()
}

// DeleteFileChunksFrom removes the chunks of a file with index >= fromIndex
func (s *PostgresStorage) DeleteFileChunksFrom(ctx context.Context, projectID, filePath string, fromIndex int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM code_embeddings WHERE project_id = $1 AND file_path = $2 AND chunk_index >= $3",
		projectID, filePath, fromIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteProjectEmbeddings removes every chunk of a project and returns how many were removed
func (s *PostgresStorage) DeleteProjectEmbeddings(ctx context.Context, projectID string) (int64, error) {
	if projectID == "" {
		return 0, types.ErrEmptyProjectID
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM code_embeddings WHERE project_id = $1", projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SearchSimilar ranks chunks by pgvector cosine distance
func (s *PostgresStorage) SearchSimilar(ctx context.Context, q SearchQuery) ([]types.SearchMatch, error) {
	if err := validateSearchQuery(q); err != nil {
		return nil, err
	}
	if q.MaxResults <= 0 {
		return []types.SearchMatch{}, nil
	}

	query := `
		SELECT id::text, file_path, content, chunk_index, COALESCE(language, ''),
			embedding <=> $1 AS distance
		FROM code_embeddings
		WHERE project_id = $2 AND 1 - (embedding <=> $1) >= $3
	`
	args := []interface{}{pgvector.NewVector(q.Embedding), q.ProjectID, q.MinSimilarity}
	if q.FileFilter != "" {
		args = append(args, globToLike(q.FileFilter))
		query += fmt.Sprintf(` AND file_path LIKE $%d ESCAPE '\'`, len(args))
	}
	args = append(args, q.MaxResults)
	query += fmt.Sprintf(" ORDER BY distance ASC, id ASC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer rows.Close()

	results := make([]types.SearchMatch, 0, q.MaxResults)
	for rows.Next() {
		var m types.SearchMatch
		var distance float64
		if err := rows.Scan(&m.ID, &m.FilePath, &m.Content, &m.ChunkIndex, &m.Language, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		m.Similarity = similarityFromDistance(distance)
		if err := checkMatch(&m); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// GetProjectStats aggregates file, chunk and language counts for a project
func (s *PostgresStorage) GetProjectStats(ctx context.Context, projectID string) (*ProjectStats, error) {
	stats := &ProjectStats{ProjectID: projectID, Languages: make(map[string]int)}

	var last *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT file_path), COUNT(*), MAX(updated_at)
		FROM code_embeddings WHERE project_id = $1
	`, projectID).Scan(&stats.TotalFiles, &stats.TotalChunks, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if last != nil {
		stats.LastIndexedAt = *last
	}

	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(language, ''), COUNT(DISTINCT file_path)
		FROM code_embeddings WHERE project_id = $1
		GROUP BY 1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count languages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lang string
		var files int
		if err := rows.Scan(&lang, &files); err != nil {
			return nil, fmt.Errorf("failed to scan language count: %w", err)
		}
		stats.Languages[languageKey(lang)] += files
	}
	return stats, rows.Err()
}

// CreateMemory stores an immutable memory record
func (s *PostgresStorage) CreateMemory(ctx context.Context, memory *types.Memory) (string, error) {
	if err := memory.Validate(); err != nil {
		return "", err
	}
	content, err := encodeMemoryContent(memory.Content)
	if err != nil {
		return "", err
	}

	var embedding *pgvector.Vector
	if len(memory.Embedding) > 0 {
		v := pgvector.NewVector(memory.Embedding)
		embedding = &v
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO project_memories (id, project_id, ticket_id, memory_type, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
	`, id, memory.ProjectID, optionalText(memory.TicketID), string(memory.MemoryType), content, embedding, now)
	if err != nil {
		return "", fmt.Errorf("failed to create memory: %w", err)
	}

	memory.ID = id
	memory.CreatedAt = now
	return id, nil
}

// GetMemories returns a project's memories newest first, optionally of one type
func (s *PostgresStorage) GetMemories(ctx context.Context, projectID string, memoryType types.MemoryType, limit int) ([]types.Memory, error) {
	if memoryType != "" && !memoryType.Valid() {
		return nil, types.ErrInvalidMemoryType
	}

	query := `
		SELECT id::text, project_id, ticket_id, memory_type, content::text, embedding::text, created_at
		FROM project_memories
		WHERE project_id = $1`
	args := []interface{}{projectID}
	if memoryType != "" {
		args = append(args, string(memoryType))
		query += fmt.Sprintf(" AND memory_type = $%d", len(args))
	}
	args = append(args, memoryLimit(limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC, seq DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	memories := make([]types.Memory, 0)
	for rows.Next() {
		var m types.Memory
		var ticket, embedding *string
		var memType, content string
		if err := rows.Scan(&m.ID, &m.ProjectID, &ticket, &memType, &content, &embedding, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if ticket != nil {
			m.TicketID = *ticket
		}
		m.MemoryType = types.MemoryType(memType)
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("failed to decode memory %s: %w", m.ID, err)
		}
		if embedding != nil {
			var v pgvector.Vector
			if err := v.Parse(*embedding); err != nil {
				return nil, fmt.Errorf("failed to decode memory embedding %s: %w", m.ID, err)
			}
			m.Embedding = v.Slice()
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

const pgPatternColumns = `id::text, project_id, pattern_type, pattern_content::text, success_count, failure_count, last_used_at, created_at`

func scanPgPattern(row pgx.Row) (*types.LearnedPattern, error) {
	var p types.LearnedPattern
	var content string
	var lastUsed *time.Time
	err := row.Scan(&p.ID, &p.ProjectID, &p.PatternType, &content,
		&p.SuccessCount, &p.FailureCount, &lastUsed, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PatternContent = json.RawMessage(content)
	if lastUsed != nil {
		p.LastUsedAt = *lastUsed
	}
	return &p, nil
}

// GetLearnedPatterns returns up to MaxLearnedPatterns patterns, most successful first
func (s *PostgresStorage) GetLearnedPatterns(ctx context.Context, projectID, patternType string) ([]types.LearnedPattern, error) {
	query := "SELECT " + pgPatternColumns + " FROM learned_patterns WHERE project_id = $1"
	args := []interface{}{projectID}
	if patternType != "" {
		args = append(args, patternType)
		query += " AND pattern_type = $2"
	}
	args = append(args, MaxLearnedPatterns)
	query += fmt.Sprintf(" ORDER BY success_count DESC, created_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer rows.Close()

	patterns := make([]types.LearnedPattern, 0)
	for rows.Next() {
		p, err := scanPgPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// RecordPatternOutcome increments the success or failure counter of a
// pattern. The first success creates it; a failure for an unknown pattern
// returns ErrNotFound.
func (s *PostgresStorage) RecordPatternOutcome(ctx context.Context, o PatternOutcome) (*types.LearnedPattern, error) {
	if err := validateOutcome(o); err != nil {
		return nil, err
	}
	content, hash, err := canonicalPattern(o.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pattern content: %w", err)
	}

	now := time.Now().UTC()
	var row pgx.Row
	if o.Success {
		row = s.pool.QueryRow(ctx, `
			INSERT INTO learned_patterns (
				id, project_id, pattern_type, pattern_content, content_hash,
				success_count, failure_count, last_used_at, created_at
			) VALUES ($1, $2, $3, $4::jsonb, $5, 1, 0, $6, $6)
			ON CONFLICT (project_id, pattern_type, content_hash) DO UPDATE SET
				success_count = learned_patterns.success_count + 1,
				last_used_at = EXCLUDED.last_used_at
			RETURNING `+pgPatternColumns,
			uuid.NewString(), o.ProjectID, o.PatternType, string(content), hash, now)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE learned_patterns
			SET failure_count = failure_count + 1, last_used_at = $1
			WHERE project_id = $2 AND pattern_type = $3 AND content_hash = $4
			RETURNING `+pgPatternColumns,
			now, o.ProjectID, o.PatternType, hash)
	}

	pattern, err := scanPgPattern(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pattern %q: %w", o.PatternType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record pattern outcome: %w", err)
	}
	return pattern, nil
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// globToLike translates a '*' glob into a LIKE pattern with '\' as escape.
// Like escapeGlob, every other character matches itself.
func globToLike(glob string) string {
	var sb strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteByte('%')
		case '%', '_', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
