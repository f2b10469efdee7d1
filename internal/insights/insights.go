package insights

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dshills/codememory/internal/llm"
	"github.com/dshills/codememory/internal/storage"
	"github.com/dshills/codememory/pkg/types"
)

const (
	// ChatMaxResults and ChatMaxTokens bound the context retrieved per chat turn
	ChatMaxResults = 10
	ChatMaxTokens  = 4000

	// MaxTechnologies caps MainTechnologies in a summary
	MaxTechnologies = 5

	NoContextReply   = "I don't have any indexed code for this project yet. Please index the codebase first."
	NotIndexedNotice = "Summary not yet generated. Please index the codebase first."
)

// ErrEmptyMessage is returned when a chat message has no text
var ErrEmptyMessage = errors.New("message cannot be empty")

const systemPromptTemplate = `You are a helpful assistant that answers questions about a codebase.
Use the following code context to answer the user's question accurately.
If the context doesn't contain enough information to answer the question, say so.
Always cite the relevant files when providing information.

## Codebase Context
%s
`

// ContextSource retrieves token bounded code context for a question
type ContextSource interface {
	GetRelevantContext(ctx context.Context, projectID, query string, maxResults, maxTokens int) (string, []string, error)
}

// StatsSource reports what has been indexed for a project
type StatsSource interface {
	GetProjectStats(ctx context.Context, projectID string) (*storage.ProjectStats, error)
}

// ChatResponse is the answer to a chat turn and the files it was grounded on
type ChatResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// Service answers questions about a codebase and summarizes its index
type Service struct {
	context   ContextSource
	stats     StatsSource
	completer llm.Completer
	logger    *log.Logger
}

// New creates a Service. completer may be nil, in which case chat turns that
// find context fail with llm.ErrCompletionFailed.
func New(contextSource ContextSource, stats StatsSource, completer llm.Completer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{
		context:   contextSource,
		stats:     stats,
		completer: completer,
		logger:    logger,
	}
}

// Chat answers message using code retrieved from the project. Without any
// matching code it returns a fixed reply and makes no model call.
func (s *Service) Chat(ctx context.Context, projectID, message string, history []llm.Message) (*ChatResponse, error) {
	if projectID == "" {
		return nil, types.ErrEmptyProjectID
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	codeContext, sources, err := s.context.GetRelevantContext(ctx, projectID, message, ChatMaxResults, ChatMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if codeContext == "" {
		return &ChatResponse{Response: NoContextReply, Sources: []string{}}, nil
	}

	if s.completer == nil {
		return nil, fmt.Errorf("%w: no LLM configured", llm.ErrCompletionFailed)
	}

	turns := make([]llm.Message, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, llm.Message{Role: llm.RoleUser, Content: message})

	answer, err := s.completer.Complete(ctx, fmt.Sprintf(systemPromptTemplate, codeContext), turns)
	if err != nil {
		s.logger.Error("chat completion failed", "project", projectID, "err", err)
		return nil, err
	}

	return &ChatResponse{Response: answer, Sources: sources}, nil
}

// Summary describes the indexed state of a project from stored chunks
func (s *Service) Summary(ctx context.Context, projectID string) (*types.CodebaseSummary, error) {
	if projectID == "" {
		return nil, types.ErrEmptyProjectID
	}

	stats, err := s.stats.GetProjectStats(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project stats: %w", err)
	}

	summary := &types.CodebaseSummary{
		ProjectID:        projectID,
		TotalFiles:       stats.TotalFiles,
		TotalChunks:      stats.TotalChunks,
		Languages:        stats.Languages,
		MainTechnologies: mainTechnologies(stats.Languages),
	}
	if summary.Languages == nil {
		summary.Languages = map[string]int{}
	}

	if stats.TotalFiles == 0 {
		summary.ArchitectureNotes = NotIndexedNotice
		return summary, nil
	}
	summary.ArchitectureNotes = architectureNotes(stats, summary.MainTechnologies)
	return summary, nil
}

var displayNames = map[string]string{
	"python":     "Python",
	"javascript": "JavaScript",
	"typescript": "TypeScript",
	"go":         "Go",
	"rust":       "Rust",
	"java":       "Java",
	"ruby":       "Ruby",
	"php":        "PHP",
	"c":          "C",
	"cpp":        "C++",
	"csharp":     "C#",
	"swift":      "Swift",
	"kotlin":     "Kotlin",
	"scala":      "Scala",
	"vue":        "Vue",
	"svelte":     "Svelte",
}

// mainTechnologies lists known languages by file count, largest first
func mainTechnologies(languages map[string]int) []string {
	type langCount struct {
		name  string
		files int
	}

	counts := make([]langCount, 0, len(languages))
	for lang, files := range languages {
		if _, ok := displayNames[lang]; ok && files > 0 {
			counts = append(counts, langCount{lang, files})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].files != counts[j].files {
			return counts[i].files > counts[j].files
		}
		return counts[i].name < counts[j].name
	})

	techs := make([]string, 0, min(len(counts), MaxTechnologies))
	for _, c := range counts {
		if len(techs) == MaxTechnologies {
			break
		}
		techs = append(techs, displayNames[c.name])
	}
	return techs
}

func architectureNotes(stats *storage.ProjectStats, techs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Indexed %d files in %d chunks.", stats.TotalFiles, stats.TotalChunks)
	switch len(techs) {
	case 0:
	case 1:
		fmt.Fprintf(&b, " Written in %s.", techs[0])
	default:
		fmt.Fprintf(&b, " Primarily %s, also %s.", techs[0], strings.Join(techs[1:], ", "))
	}
	if !stats.LastIndexedAt.IsZero() {
		fmt.Fprintf(&b, " Last indexed %s.", stats.LastIndexedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}
