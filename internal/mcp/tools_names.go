package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"purify/internal/etl"
	"purify/internal/etl/sources"
)

func (s *Server) registerNameTools() {
	s.mcp.AddTool(mcp.NewTool("clean_company_names",
		mcp.WithDescription(`Normalize company names: title case, "&" acronyms upper-cased (p&g → P&G), parentheses removed, punctuation stripped and legal suffixes (Ltd, Inc, GmbH, ...) dropped.
Pass either "names" (plain strings) or "recordsJSON" (a JSON array of single-key objects {"<name>": {...}}, whose keys are cleaned and payloads kept).`),
		mcp.WithArray("names", mcp.Description("Company names to clean"), mcp.WithStringItems()),
		mcp.WithString("recordsJSON", mcp.Description(`JSON array of named records, e.g. [{"acme, inc.":{"revenue":1}}]`)),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleCleanCompanyNames)

	s.mcp.AddTool(mcp.NewTool("reshape_rows",
		mcp.WithDescription(`Pivot flat rows into keyed records: each row becomes {"<pivot value>": {<other columns>}}. Column order follows the first row; null becomes "".`),
		mcp.WithString("pivotColumn", mcp.Description("Column whose value becomes the record key"), mcp.Required()),
		mcp.WithString("rowsJSON", mcp.Description(`JSON array of row objects, e.g. [{"name":"Acme","revenue":10}]`), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleReshapeRows)
}

type cleanedName struct {
	Input   string `json:"input"`
	Cleaned string `json:"cleaned"`
}

func (s *Server) handleCleanCompanyNames(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.cleaner == nil {
		return nil, fmt.Errorf("name cleaner not configured")
	}
	args := req.GetArguments()

	// Clients that send the records as a decoded array skip the JSON round trip.
	if batch, ok := args["recordsJSON"].([]any); ok {
		objs := make([]map[string]any, len(batch))
		for i, item := range batch {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("parse recordsJSON: %w", &etl.MalformedRecordError{Index: i})
			}
			objs[i] = obj
		}
		cleaned, err := etl.CleanTextData(objs, s.cleaner)
		if err != nil {
			return nil, fmt.Errorf("parse recordsJSON: %w", err)
		}
		return jsonResult(cleaned)
	}
	if raw, ok := rawJSONArg(args, "recordsJSON"); ok {
		records, err := etl.ParseNamedRecords(raw)
		if err != nil {
			return nil, fmt.Errorf("parse recordsJSON: %w", err)
		}
		return jsonResult(etl.RewriteKeys(records, s.cleaner))
	}

	list, _ := args["names"].([]any)
	if len(list) == 0 {
		return nil, fmt.Errorf("names or recordsJSON is required")
	}
	out := make([]cleanedName, 0, len(list))
	for i, v := range list {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("names[%d] is not a string", i)
		}
		out = append(out, cleanedName{Input: name, Cleaned: s.cleaner.Clean(name)})
	}
	return jsonResult(out)
}

func (s *Server) handleReshapeRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pivot := req.GetString("pivotColumn", "")
	if pivot == "" {
		return nil, fmt.Errorf("pivotColumn is required")
	}
	raw, ok := rawJSONArg(req.GetArguments(), "rowsJSON")
	if !ok {
		return nil, fmt.Errorf("rowsJSON is required")
	}

	schema, rows, err := sources.DecodeRows(raw, "")
	if err != nil {
		return nil, fmt.Errorf("parse rowsJSON: %w", err)
	}
	reshaped, err := etl.ProcessData(etl.FillNulls(etl.NewDataset(schema, rows)), pivot)
	if err != nil {
		return nil, err
	}
	return jsonResult(reshaped)
}
