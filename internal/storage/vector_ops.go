package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/codememory/pkg/types"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, q SearchQuery) ([]types.SearchMatch, error) {
	if q.MaxResults <= 0 {
		return []types.SearchMatch{}, nil
	}
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, q)
	}
	return searchVectorFallback(ctx, db, q)
}

// searchVectorOptimized uses sqlite-vec's vec_distance_cosine to rank in SQL
func searchVectorOptimized(ctx context.Context, db *sql.DB, q SearchQuery) ([]types.SearchMatch, error) {
	queryBlob := serializeVector(q.Embedding)

	query := `
		SELECT id, file_path, content, chunk_index, COALESCE(language, ''),
			vec_distance_cosine(embedding, ?) AS distance
		FROM code_embeddings
		WHERE project_id = ?
	`
	args := []interface{}{queryBlob, q.ProjectID}
	query, args = applyFileFilter(query, args, q.FileFilter)

	query += " AND (1.0 - vec_distance_cosine(embedding, ?)) >= ?"
	args = append(args, queryBlob, q.MinSimilarity)

	query += " ORDER BY distance ASC, id ASC LIMIT ?"
	args = append(args, q.MaxResults)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// searchVectorFallback loads candidate vectors and ranks them in Go.
// Used for purego builds where sqlite-vec is not available.
func searchVectorFallback(ctx context.Context, db *sql.DB, q SearchQuery) ([]types.SearchMatch, error) {
	query := `
		SELECT id, file_path, content, chunk_index, COALESCE(language, ''), embedding
		FROM code_embeddings
		WHERE project_id = ?
	`
	args := []interface{}{q.ProjectID}
	query, args = applyFileFilter(query, args, q.FileFilter)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, q)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	if len(candidates) > q.MaxResults {
		candidates = candidates[:q.MaxResults]
	}
	return candidates, nil
}

// applyFileFilter restricts file_path with SQLite GLOB, where '*' matches any run of characters
func applyFileFilter(query string, args []interface{}, filter string) (string, []interface{}) {
	if filter == "" {
		return query, args
	}
	return query + " AND file_path GLOB ?", append(args, escapeGlob(filter))
}

// escapeGlob leaves '*' as the only GLOB wildcard. '?' and '[' are wrapped
// in a one-character class so paths like app/[id]/page.tsx match literally.
func escapeGlob(filter string) string {
	var sb strings.Builder
	for _, r := range filter {
		switch r {
		case '?':
			sb.WriteString("[?]")
		case '[':
			sb.WriteString("[[]")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// similarityFromDistance converts a cosine distance, clamped to [-1, 1]
func similarityFromDistance(distance float64) float64 {
	return math.Max(-1, math.Min(1, 1-distance))
}

// checkMatch rejects rows a backend returned without a path or with an out of range score
func checkMatch(m *types.SearchMatch) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("malformed match %s: %w", m.ID, err)
	}
	return nil
}

// computeSimilarityScores scans rows and keeps those at or above the minimum similarity
func computeSimilarityScores(rows *sql.Rows, q SearchQuery) ([]types.SearchMatch, error) {
	candidates := make([]types.SearchMatch, 0, 256)

	for rows.Next() {
		var m types.SearchMatch
		var vectorBlob []byte
		if err := rows.Scan(&m.ID, &m.FilePath, &m.Content, &m.ChunkIndex, &m.Language, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(q.Embedding) {
			continue // Dimension mismatch, skip
		}

		m.Similarity = cosineSimilarity(q.Embedding, vector)
		if m.Similarity < q.MinSimilarity {
			continue
		}
		if err := checkMatch(&m); err != nil {
			return nil, err
		}
		candidates = append(candidates, m)
	}

	return candidates, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
// A zero vector has similarity 0 with everything.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors just past 1
	return math.Max(-1, math.Min(1, sim))
}

// sortCandidates orders by ascending distance (descending similarity), ties by id
func sortCandidates(candidates []types.SearchMatch) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ID < candidates[j].ID
	})
}
