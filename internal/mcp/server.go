package mcpserver

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"purify/internal/etl"
)

// JobRunner is the slice of the relay service the tools need.
type JobRunner interface {
	ListJobs() ([]etl.RelayJob, error)
	RunJob(ctx context.Context, id string) (*etl.RunResult, error)
	ListRunLogs(jobID string) ([]etl.RunLog, error)
	ListSources() []etl.SourceSpec
	Preview(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (etl.Dataset, error)
}

// Server is the MCP server for purify.
// It exposes the name cleaner, the reshaper and relay jobs to AI agents.
type Server struct {
	mcp     *server.MCPServer
	cleaner etl.NameCleaner
	jobs    JobRunner
}

// Deps holds everything the MCP server is wired to.
type Deps struct {
	Cleaner etl.NameCleaner
	Jobs    JobRunner
	Version string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		cleaner: deps.Cleaner,
		jobs:    deps.Jobs,
	}

	s.mcp = server.NewMCPServer(
		"purify-mcp",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerNameTools()
	if s.jobs != nil {
		s.registerRelayTools()
		s.registerResources()
	}
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}
