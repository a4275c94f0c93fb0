package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"purify/internal/etl"
)

const defaultPreviewRows = 20

func (s *Server) registerRelayTools() {
	s.mcp.AddTool(mcp.NewTool("list_relay_sources",
		mcp.WithDescription("List available relay source types with their configuration schemas"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRelaySources)

	s.mcp.AddTool(mcp.NewTool("list_relay_jobs",
		mcp.WithDescription("List configured relay jobs with their trigger and last run status"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRelayJobs)

	s.mcp.AddTool(mcp.NewTool("run_relay_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a relay job now. Jobs in replace mode clear the target collection first."),
		mcp.WithString("jobId", mcp.Description("Relay job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunRelayJob)

	s.mcp.AddTool(mcp.NewTool("preview_relay_source",
		mcp.WithDescription("Preview rows from a relay source without writing anything"),
		mcp.WithString("sourceType", mcp.Description("Source type (see list_relay_sources)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description(`Source configuration as JSON, e.g. {"connectionId":"warehouse"}`), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description(fmt.Sprintf("Rows to return (default %d)", defaultPreviewRows))),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePreviewRelaySource)
}

func (s *Server) handleListRelaySources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.jobs.ListSources())
}

func (s *Server) handleListRelayJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list relay jobs: %w", err)
	}
	return jsonResult(jobs)
}

func (s *Server) handleRunRelayJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}

	result, err := s.jobs.RunJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("run relay job: %w", err)
	}
	return jsonResult(result)
}

// previewResult is a Dataset with rows in column order.
type previewResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (s *Server) handlePreviewRelaySource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	raw, ok := rawJSONArg(req.GetArguments(), "sourceConfigJSON")
	if sourceType == "" || !ok {
		return nil, fmt.Errorf("sourceType and sourceConfigJSON are required")
	}
	var cfg etl.SourceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse sourceConfig: %w", err)
	}

	ds, err := s.jobs.Preview(ctx, sourceType, cfg, req.GetInt("maxRows", defaultPreviewRows))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}

	out := previewResult{Columns: ds.Columns, Rows: make([][]any, len(ds.Rows))}
	for i, rec := range ds.Rows {
		row := make([]any, len(ds.Columns))
		for j, col := range ds.Columns {
			row[j] = rec.Data[col]
		}
		out.Rows[i] = row
	}
	return jsonResult(out)
}
