package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("relay_pipeline",
		mcp.WithPromptDescription("Set up a relay from a relational table to a document collection"),
		mcp.WithArgument("table",
			mcp.ArgumentDescription("Source table holding the company rows"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("pivotColumn",
			mcp.ArgumentDescription("Column holding the company name"),
			mcp.RequiredArgument(),
		),
	), s.handleRelayPipelinePrompt)
}

func (s *Server) handleRelayPipelinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	table := req.Params.Arguments["table"]
	pivot := req.Params.Arguments["pivotColumn"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Relay %s keyed by %s", table, pivot),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Set up a relay for the %q table, keyed by %q.

1. Call list_relay_sources and pick the "database" source.
2. Call preview_relay_source with {"connectionId": "<read connection>", "query": "SELECT * FROM %s"} and check that %q is present.
3. Call reshape_rows on a few preview rows with pivotColumn %q to see the record shape.
4. Call clean_company_names on the %q values and review the cleaned names for surprises.
5. Only then call run_relay_job for an existing job, and report rows read and written.`,
						table, pivot, table, pivot, pivot, pivot),
				},
			},
		},
	}, nil
}
