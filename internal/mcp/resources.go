package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── purify://jobs ──────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"purify://jobs",
		"Relay Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── purify://jobs/{jobId}/runs ─────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"purify://jobs/{jobId}/runs",
			"Recent Runs of a Relay Job",
		),
		s.handleJobRunsResource,
	)
}

type jobSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Trigger    string `json:"trigger"`
	LastStatus string `json:"lastStatus"`
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		return nil, err
	}

	summaries := make([]jobSummary, len(jobs))
	for i, j := range jobs {
		summaries[i] = jobSummary{ID: j.ID, Name: j.Name, Trigger: j.TriggerType, LastStatus: j.LastStatus}
	}

	data, err := indentJSON(summaries)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "purify://jobs",
			MIMEType: "application/json",
			Text:     data,
		},
	}, nil
}

func (s *Server) handleJobRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	jobID := jobIDFromURI(uri)
	if jobID == "" {
		return nil, fmt.Errorf("could not extract jobId from URI: %s", uri)
	}

	logs, err := s.jobs.ListRunLogs(jobID)
	if err != nil {
		return nil, err
	}
	data, err := indentJSON(logs)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     data,
		},
	}, nil
}

// jobIDFromURI extracts the job ID from "purify://jobs/{id}/runs".
func jobIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "purify://jobs/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/runs")
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
