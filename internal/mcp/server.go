package mcp

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codememory/internal/app"
)

// ServerName is the MCP server name
const ServerName = "codememory"

// Server exposes the code memory to MCP clients
type Server struct {
	mcp    *server.MCPServer
	app    *app.App
	logger *log.Logger
}

// NewServer creates a new MCP server over the application components
func NewServer(a *app.App, version string) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		app:    a,
		logger: a.Logger.WithPrefix("mcp"),
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over stdin and stdout until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO speaks MCP over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))

	s.logger.Info("serving MCP over stdio", "tools", len(toolDefinitions()))
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	handlers := map[string]server.ToolHandlerFunc{
		ToolIndexFiles:           s.handleIndexFiles,
		ToolIndexDirectory:       s.handleIndexDirectory,
		ToolSearchCode:           s.handleSearchCode,
		ToolGetContext:           s.handleGetContext,
		ToolDeleteIndex:          s.handleDeleteIndex,
		ToolCreateMemory:         s.handleCreateMemory,
		ToolGetMemories:          s.handleGetMemories,
		ToolGetPatterns:          s.handleGetPatterns,
		ToolRecordPatternOutcome: s.handleRecordPatternOutcome,
		ToolChat:                 s.handleChat,
		ToolCodebaseSummary:      s.handleCodebaseSummary,
	}
	for _, tool := range toolDefinitions() {
		s.mcp.AddTool(tool, handlers[tool.Name])
	}
}
