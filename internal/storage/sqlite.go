package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/codememory/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also keeps :memory: databases
	// on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance and applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// withTx runs fn inside a transaction, committing only when fn succeeds
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Code chunk operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, chunk *types.CodeChunk) (string, error) {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path, chunk_index) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			embedding_model = excluded.embedding_model,
			language = excluded.language,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
		RETURNING id
	`
	newID := uuid.NewString()
	now := time.Now().UTC()

	var id string
	err := q.QueryRowContext(ctx, query,
		newID, chunk.ProjectID, chunk.FilePath, chunk.ChunkIndex, chunk.Content,
		chunk.ContentHash, chunk.EmbeddingModel, nullString(chunk.Language), serializeVector(chunk.Embedding),
		now, now,
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

// UpsertEmbedding inserts a chunk or updates the row at the same
// (project, file, chunk index), keeping its id.
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, chunk *types.CodeChunk) (string, error) {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), chunk)
}

// GetChunkHashes returns the stored content hash and embedding model per
// chunk index of a file
func (s *SQLiteStorage) GetChunkHashes(ctx context.Context, projectID, filePath string) (map[int]ChunkHash, error) {
	query := `
		SELECT chunk_index, content_hash, embedding_model
		FROM code_embeddings
		WHERE project_id = ? AND file_path = ?
	`
	rows, err := s.db.QueryContext(ctx, query, projectID, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStorage) DeleteFileChunksFrom(ctx context.Context, projectID, filePath string, fromIndex int) (int64, error) {
	query := "DELETE FROM code_embeddings WHERE project_id = ? AND file_path = ? AND chunk_index >= ?"
	result, err := s.db.ExecContext(ctx, query, projectID, filePath, fromIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file chunks: %w", err)
	}
	return result.RowsAffected()
}

// DeleteProjectEmbeddings removes every chunk of a project and returns how many were removed
func (s *SQLiteStorage) DeleteProjectEmbeddings(ctx context.Context, projectID string) (int64, error) {
	if projectID == "" {
		return 0, types.ErrEmptyProjectID
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM code_embeddings WHERE project_id = ?", projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project embeddings: %w", err)
	}
	return result.RowsAffected()
}

// SearchSimilar returns the project's chunks nearest to the query embedding
func (s *SQLiteStorage) SearchSimilar(ctx context.Context, q SearchQuery) ([]types.SearchMatch, error) {
	if err := validateSearchQuery(q); err != nil {
		return nil, err
	}
	return searchVector(ctx, s.db, q)
}

// GetProjectStats aggregates file, chunk and language counts for a project
func (s *SQLiteStorage) GetProjectStats(ctx context.Context, projectID string) (*ProjectStats, error) {
	stats := &ProjectStats{ProjectID: projectID, Languages: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT file_path), COUNT(*) FROM code_embeddings WHERE project_id = ?",
		projectID,
	).Scan(&stats.TotalFiles, &stats.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if stats.TotalChunks == 0 {
		return stats, nil
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT updated_at FROM code_embeddings WHERE project_id = ? ORDER BY updated_at DESC LIMIT 1",
		projectID,
	).Scan(&stats.LastIndexedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read last index time: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(language, ''), COUNT(DISTINCT file_path)
		FROM code_embeddings
		WHERE project_id = ?
		GROUP BY COALESCE(language, '')
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count languages: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func languageKey(lang string) string {
	if lang == "" {
		return "unknown"
	}
	return lang
}

// Memory operations

// CreateMemory stores an immutable memory record
func (s *SQLiteStorage) CreateMemory(ctx context.Context, memory *types.Memory) (string, error) {
	if err := memory.Validate(); err != nil {
		return "", err
	}
	content, err := encodeMemoryContent(memory.Content)
	if err != nil {
		return "", err
	}

	var embedding []byte
	if len(memory.Embedding) > 0 {
		embedding = serializeVector(memory.Embedding)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	query := `
		INSERT INTO project_memories (id, project_id, ticket_id, memory_type, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		id, memory.ProjectID, nullString(memory.TicketID), string(memory.MemoryType),
		content, embedding, now)
	if err != nil {
		return "", fmt.Errorf("failed to create memory: %w", err)
	}

	memory.ID = id
	memory.CreatedAt = now
	return id, nil
}

// GetMemories returns a project's memories newest first, optionally of one type
func (s *SQLiteStorage) GetMemories(ctx context.Context, projectID string, memoryType types.MemoryType, limit int) ([]types.Memory, error) {
	if memoryType != "" && !memoryType.Valid() {
		return nil, types.ErrInvalidMemoryType
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, project_id, ticket_id, memory_type, content, embedding, created_at
		FROM project_memories
		WHERE project_id = ?`)
	args := []interface{}{projectID}
	if memoryType != "" {
		sb.WriteString(" AND memory_type = ?")
		args = append(args, string(memoryType))
	}
	sb.WriteString(" ORDER BY created_at DESC, rowid DESC LIMIT ?")
	args = append(args, memoryLimit(limit))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories := make([]types.Memory, 0)
	for rows.Next() {
		var m types.Memory
		var ticket sql.NullString
		var memType, content string
		var embedding []byte
		if err := rows.Scan(&m.ID, &m.ProjectID, &ticket, &memType, &content, &embedding, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.TicketID = ticket.String
		m.MemoryType = types.MemoryType(memType)
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("failed to decode memory %s: %w", m.ID, err)
		}
		if len(embedding) > 0 {
			m.Embedding = deserializeVector(embedding)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func encodeMemoryContent(content map[string]any) (string, error) {
	if content == nil {
		return "{}", nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode memory content: %w", err)
	}
	return string(b), nil
}

// Pattern operations

const patternColumns = `id, project_id, pattern_type, pattern_content, success_count, failure_count, last_used_at, created_at`

func scanPattern(row rowScanner) (*types.LearnedPattern, error) {
	var p types.LearnedPattern
	var content string
	var lastUsed sql.NullTime
	err := row.Scan(&p.ID, &p.ProjectID, &p.PatternType, &content,
		&p.SuccessCount, &p.FailureCount, &lastUsed, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PatternContent = json.RawMessage(content)
	if lastUsed.Valid {
		p.LastUsedAt = lastUsed.Time
	}
	return &p, nil
}

// GetLearnedPatterns returns up to MaxLearnedPatterns patterns, most successful first
func (s *SQLiteStorage) GetLearnedPatterns(ctx context.Context, projectID, patternType string) ([]types.LearnedPattern, error) {
	query := "SELECT " + patternColumns + " FROM learned_patterns WHERE project_id = ?"
	args := []interface{}{projectID}
	if patternType != "" {
		query += " AND pattern_type = ?"
		args = append(args, patternType)
	}
	query += " ORDER BY success_count DESC, created_at ASC, id ASC LIMIT ?"
	args = append(args, MaxLearnedPatterns)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	patterns := make([]types.LearnedPattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

func (s *SQLiteStorage) recordOutcomeWithQuerier(ctx context.Context, q querier, o PatternOutcome, content json.RawMessage, hash string) (string, error) {
	now := time.Now().UTC()
	var id string

	if o.Success {
		query := `
			INSERT INTO learned_patterns (
				id, project_id, pattern_type, pattern_content, content_hash,
				success_count, failure_count, last_used_at, created_at
			) VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
			ON CONFLICT(project_id, pattern_type, content_hash) DO UPDATE SET
				success_count = learned_patterns.success_count + 1,
				last_used_at = excluded.last_used_at
			RETURNING id
		`
		err := q.QueryRowContext(ctx, query,
			uuid.NewString(), o.ProjectID, o.PatternType, string(content), hash, now, now,
		).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("failed to record pattern success: %w", err)
		}
		return id, nil
	}

	query := `
		UPDATE learned_patterns
		SET failure_count = failure_count + 1, last_used_at = ?
		WHERE project_id = ? AND pattern_type = ? AND content_hash = ?
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query, now, o.ProjectID, o.PatternType, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("pattern %q: %w", o.PatternType, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to record pattern failure: %w", err)
	}
	return id, nil
}

// RecordPatternOutcome increments the success or failure counter of a
// pattern identified by project, type and content. The first success creates
// the pattern; a failure for an unknown pattern returns ErrNotFound.
func (s *SQLiteStorage) RecordPatternOutcome(ctx context.Context, o PatternOutcome) (*types.LearnedPattern, error) {
	if err := validateOutcome(o); err != nil {
		return nil, err
	}
	content, hash, err := canonicalPattern(o.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pattern content: %w", err)
	}

	var pattern *types.LearnedPattern
	err = s.withTx(ctx, func(q querier) error {
		id, err := s.recordOutcomeWithQuerier(ctx, q, o, content, hash)
		if err != nil {
			return err
		}
		row := q.QueryRowContext(ctx, "SELECT "+patternColumns+" FROM learned_patterns WHERE id = ?", id)
		pattern, err = scanPattern(row)
		if err != nil {
			return fmt.Errorf("failed to read pattern: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pattern, nil
}
