package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"purify/internal/etl"
	"purify/internal/names"
)

type fakeJobs struct {
	ran        []string
	previewMax int
}

func (f *fakeJobs) ListJobs() ([]etl.RelayJob, error) {
	return []etl.RelayJob{{ID: "j1", Name: "nightly", TriggerType: "schedule", LastStatus: "success"}}, nil
}

func (f *fakeJobs) RunJob(_ context.Context, id string) (*etl.RunResult, error) {
	if id != "j1" {
		return nil, errors.New("not found")
	}
	f.ran = append(f.ran, id)
	return &etl.RunResult{JobID: id, Status: "success", RowsRead: 2, RowsWritten: 2}, nil
}

func (f *fakeJobs) ListRunLogs(jobID string) ([]etl.RunLog, error) {
	return []etl.RunLog{{ID: "r1", JobID: jobID, Status: "success"}}, nil
}

func (f *fakeJobs) ListSources() []etl.SourceSpec {
	return []etl.SourceSpec{{Type: "database", Label: "Database Query"}}
}

func (f *fakeJobs) Preview(_ context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (etl.Dataset, error) {
	f.previewMax = maxRows
	if cfg["connectionId"] != "warehouse" {
		return etl.Dataset{}, errors.New("unknown connection")
	}
	return etl.Dataset{
		Columns: []string{"name", "revenue"},
		Rows:    []etl.Record{{Data: map[string]any{"name": "P&G", "revenue": 1.0}}},
	}, nil
}

func newTestServer() (*Server, *fakeJobs) {
	jobs := &fakeJobs{}
	return New(Deps{Cleaner: names.NewNormalizer(names.DefaultDictionary()), Jobs: jobs}), jobs
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestCleanCompanyNames_Names(t *testing.T) {
	s, _ := newTestServer()
	res, err := s.handleCleanCompanyNames(context.Background(), call(map[string]any{
		"names": []any{"p&g uk", "J & J Holdings (UK) Ltd"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, res)
	for _, want := range []string{`"cleaned": "P&G UK"`, `"cleaned": "J & J Holdings"`} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %s in:\n%s", want, text)
		}
	}
}

func TestCleanCompanyNames_Records(t *testing.T) {
	s, _ := newTestServer()
	res, err := s.handleCleanCompanyNames(context.Background(), call(map[string]any{
		"recordsJSON": `[{"acme, inc.":{"revenue":1}}]`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := compact(resultText(t, res)); got != `[{"Acme":{"revenue":1}}]` {
		t.Errorf("got %s", got)
	}

	_, err = s.handleCleanCompanyNames(context.Background(), call(map[string]any{"recordsJSON": `[{"a":1,"b":2}]`}))
	var malformed *etl.MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Errorf("err = %v, want MalformedRecordError", err)
	}
}

func TestCleanCompanyNames_DecodedRecords(t *testing.T) {
	s, _ := newTestServer()
	res, err := s.handleCleanCompanyNames(context.Background(), call(map[string]any{
		"recordsJSON": []any{
			map[string]any{"acme, inc.": map[string]any{"revenue": 1.0}},
			map[string]any{"p&g uk": map[string]any{"city": "R&D"}},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := compact(resultText(t, res)); got != `[{"Acme":{"revenue":1}},{"P&GUK":{"city":"R&D"}}]` {
		t.Errorf("got %s", got)
	}

	_, err = s.handleCleanCompanyNames(context.Background(), call(map[string]any{
		"recordsJSON": []any{map[string]any{"a": 1.0}, "not an object"},
	}))
	var malformed *etl.MalformedRecordError
	if !errors.As(err, &malformed) || malformed.Index != 1 {
		t.Errorf("err = %v, want MalformedRecordError at 1", err)
	}
}

func TestCleanCompanyNames_NoInput(t *testing.T) {
	s, _ := newTestServer()
	if _, err := s.handleCleanCompanyNames(context.Background(), call(map[string]any{})); err == nil {
		t.Fatal("expected error without input")
	}
	if _, err := s.handleCleanCompanyNames(context.Background(), call(map[string]any{"names": []any{1}})); err == nil {
		t.Fatal("expected error for a non-string name")
	}
}

func TestReshapeRows(t *testing.T) {
	s, _ := newTestServer()
	res, err := s.handleReshapeRows(context.Background(), call(map[string]any{
		"pivotColumn": "name",
		"rowsJSON":    `[{"revenue":100,"name":"J & J Holdings (UK) Ltd","city":null,"parent":"P&G"}]`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"J&JHoldings(UK)Ltd":{"revenue":100,"city":"","parent":"P&G"}}]`
	if got := compact(resultText(t, res)); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	_, err = s.handleReshapeRows(context.Background(), call(map[string]any{"pivotColumn": "missing", "rowsJSON": `[{"a":1}]`}))
	var schemaErr *etl.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Errorf("err = %v, want SchemaError", err)
	}
}

func TestRelayTools(t *testing.T) {
	s, jobs := newTestServer()
	ctx := context.Background()

	res, err := s.handleListRelayJobs(ctx, call(nil))
	if err != nil || !strings.Contains(resultText(t, res), `"nightly"`) {
		t.Errorf("list jobs: %v", err)
	}
	res, err = s.handleListRelaySources(ctx, call(nil))
	if err != nil || !strings.Contains(resultText(t, res), `"database"`) {
		t.Errorf("list sources: %v", err)
	}

	res, err = s.handleRunRelayJob(ctx, call(map[string]any{"jobId": "j1"}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(resultText(t, res), `"rowsWritten": 2`) || len(jobs.ran) != 1 {
		t.Errorf("run result = %s", resultText(t, res))
	}
	if _, err := s.handleRunRelayJob(ctx, call(map[string]any{})); err == nil {
		t.Error("expected error without jobId")
	}
}

func TestPreviewRelaySource(t *testing.T) {
	s, jobs := newTestServer()
	res, err := s.handlePreviewRelaySource(context.Background(), call(map[string]any{
		"sourceType":       "database",
		"sourceConfigJSON": `{"connectionId":"warehouse"}`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := compact(resultText(t, res)); got != `{"columns":["name","revenue"],"rows":[["P&G",1]]}` {
		t.Errorf("got %s", got)
	}
	if jobs.previewMax != defaultPreviewRows {
		t.Errorf("maxRows = %d", jobs.previewMax)
	}

	_, err = s.handlePreviewRelaySource(context.Background(), call(map[string]any{
		"sourceType":       "database",
		"sourceConfigJSON": map[string]any{"connectionId": "warehouse"},
		"maxRows":          5.0,
	}))
	if err != nil || jobs.previewMax != 5 {
		t.Errorf("decoded config: err = %v, maxRows = %d", err, jobs.previewMax)
	}
}

func TestJobIDFromURI(t *testing.T) {
	tests := map[string]string{
		"purify://jobs/abc-123/runs": "abc-123",
		"purify://jobs//runs":        "",
		"purify://jobs/a/b/runs":     "",
		"notes://page/x/blocks":      "",
	}
	for uri, want := range tests {
		if got := jobIDFromURI(uri); got != want {
			t.Errorf("jobIDFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestNew_WithoutJobs(t *testing.T) {
	s := New(Deps{Cleaner: names.NewNormalizer(nil)})
	if s.mcp == nil {
		t.Fatal("expected MCP server")
	}
}
