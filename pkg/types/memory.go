package types

import (
	"encoding/json"
	"time"
)

// MemoryType classifies a memory record
type MemoryType string

const (
	MemoryExecutionSuccess MemoryType = "execution_success"
	MemoryPattern          MemoryType = "pattern"
	MemoryInsight          MemoryType = "insight"
	MemoryFeedback         MemoryType = "feedback"
)

// Valid reports whether t is one of the known memory types
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryExecutionSuccess, MemoryPattern, MemoryInsight, MemoryFeedback:
		return true
	default:
		return false
	}
}

// Memory is an immutable record of an outcome, insight or feedback for a project
type Memory struct {
	ID         string
	ProjectID  string
	TicketID   string // optional work item
	MemoryType MemoryType
	Content    map[string]any
	Embedding  []float32 // optional
	CreatedAt  time.Time
}

// Validate checks a memory before it is created
func (m *Memory) Validate() error {
	if m.ProjectID == "" {
		return ErrEmptyProjectID
	}
	if !m.MemoryType.Valid() {
		return ErrInvalidMemoryType
	}
	return nil
}

// LearnedPattern is a reusable behavior with success and failure counters
type LearnedPattern struct {
	ID             string
	ProjectID      string
	PatternType    string
	PatternContent json.RawMessage
	SuccessCount   int
	FailureCount   int
	LastUsedAt     time.Time
	CreatedAt      time.Time
}

// ContentString renders PatternContent as text. JSON strings are unquoted,
// any other JSON value is returned in its compact encoding.
func (p *LearnedPattern) ContentString() string {
	if len(p.PatternContent) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.PatternContent, &s); err == nil {
		return s
	}
	return string(p.PatternContent)
}
