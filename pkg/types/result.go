package types

// SearchMatch is a single nearest-neighbor hit returned by the vector store
type SearchMatch struct {
	ID         string
	FilePath   string
	Content    string
	ChunkIndex int
	Language   string
	Similarity float64 // 1 - cosine distance
}

// Validate checks the match is well formed
func (m *SearchMatch) Validate() error {
	if m.FilePath == "" {
		return ErrEmptyFilePath
	}
	if m.Similarity < -1 || m.Similarity > 1 {
		return ErrInvalidSimilarity
	}
	return nil
}

// ContextResult is the output of context assembly with learned patterns
type ContextResult struct {
	Context  string
	Sources  []string
	Patterns []LearnedPattern
}

// CodebaseSummary describes what has been indexed for a project
type CodebaseSummary struct {
	ProjectID         string         `json:"project_id"`
	TotalFiles        int            `json:"total_files"`
	TotalChunks       int            `json:"total_chunks"`
	Languages         map[string]int `json:"languages"`
	MainTechnologies  []string       `json:"main_technologies"`
	ArchitectureNotes string         `json:"architecture_notes"`
}
