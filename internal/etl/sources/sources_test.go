package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"purify/internal/etl"
)

// ── Helpers ────────────────────────────────────────────────

func readAll(t *testing.T, src etl.Source, cfg etl.SourceConfig) []etl.Record {
	t.Helper()
	recCh, errCh := src.Read(context.Background(), cfg)
	var out []etl.Record
	for r := range recCh {
		out = append(out, r)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Read: %v", err)
	}
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ── Registry ───────────────────────────────────────────────

func TestSourcesRegistered(t *testing.T) {
	for _, typ := range []string{"database", "csv_file", "json_file", "http"} {
		if _, err := etl.GetSource(typ); err != nil {
			t.Errorf("GetSource(%q): %v", typ, err)
		}
	}
}

// ── CSV ────────────────────────────────────────────────────

func TestCSVFileSource(t *testing.T) {
	path := writeFile(t, "companies.csv", "\ufeffname,revenue,listed\nAcme Ltd,100,true\nBeta,,false\n")
	src := &csvFileSource{}
	cfg := etl.SourceConfig{"filePath": path}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := schema.FieldNames(); !reflect.DeepEqual(got, []string{"name", "revenue", "listed"}) {
		t.Errorf("columns = %q", got)
	}

	recs := readAll(t, src, cfg)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Data["revenue"] != int64(100) || recs[0].Data["listed"] != true {
		t.Errorf("row 0 = %v", recs[0].Data)
	}
	if v, ok := recs[1].Data["revenue"]; !ok || v != nil {
		t.Errorf("empty cell = %#v (present %v), want nil", v, ok)
	}
}

func TestCSVFileSource_ReshapesInHeaderOrder(t *testing.T) {
	path := writeFile(t, "companies.tsv", "number\tname\tcity\n00445790\tTesco PLC\n")
	src := &csvFileSource{}
	cfg := etl.SourceConfig{"filePath": path, "delimiter": "tab"}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	out, err := etl.ProcessData(etl.FillNulls(etl.NewDataset(schema, readAll(t, src, cfg))), "name")
	if err != nil {
		t.Fatal(err)
	}
	b, err := etl.EncodeJSON(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := `[{"Tesco PLC":{"number":"00445790","city":""}}]`; string(b) != want {
		t.Errorf("reshaped = %s, want %s", b, want)
	}
}

func TestCSVFileSource_NoHeader(t *testing.T) {
	path := writeFile(t, "companies.csv", "Acme,1\nBeta,2\n")
	src := &csvFileSource{}
	cfg := etl.SourceConfig{"filePath": path, "hasHeader": "false"}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := schema.FieldNames(); !reflect.DeepEqual(got, []string{"col_1", "col_2"}) {
		t.Errorf("columns = %q", got)
	}
	recs := readAll(t, src, cfg)
	if len(recs) != 2 || recs[0].Data["col_1"] != "Acme" || recs[1].Data["col_2"] != int64(2) {
		t.Errorf("records = %v", recs)
	}
}

func TestCSVFileSource_Errors(t *testing.T) {
	tests := []struct {
		name, content string
	}{
		{"empty file", ""},
		{"duplicate header", "name,city,name\nA,B,C\n"},
		{"row wider than header", "name,city\nA,B,C\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tt.content)
			recCh, errCh := (&csvFileSource{}).Read(context.Background(), etl.SourceConfig{"filePath": path})
			for range recCh {
			}
			if err := <-errCh; err == nil {
				t.Fatal("expected a read error")
			}
		})
	}
	if _, err := (&csvFileSource{}).Discover(context.Background(), etl.SourceConfig{}); err == nil {
		t.Error("expected error without filePath")
	}
}

func TestInferCSVValue(t *testing.T) {
	tests := map[string]any{
		"":         nil,
		" 42 ":     int64(42),
		"0":        int64(0),
		"-7":       int64(-7),
		"0.5":      0.5,
		"1.25":     1.25,
		"00445790": "00445790",
		"Nan":      "Nan",
		"Inf":      "Inf",
		"TRUE":     true,
		"yes":      "yes",
		"Acme":     "Acme",
	}
	for in, want := range tests {
		if got := inferCSVValue(in); got != want {
			t.Errorf("inferCSVValue(%q) = %#v, want %#v", in, got, want)
		}
	}
}

// ── JSON ───────────────────────────────────────────────────

func TestJSONFileSource_KeepsKeyOrder(t *testing.T) {
	path := writeFile(t, "companies.json", `{"data":{"items":[
		{"zeta":1,"name":"Acme","alpha":{"x":1}},
		{"name":"Beta","extra":true}
	]}}`)
	src := &jsonFileSource{}
	cfg := etl.SourceConfig{"filePath": path, "dataPath": "data.items"}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"zeta", "name", "alpha", "extra"}
	if got := schema.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("columns = %v, want %v", got, want)
	}

	recs := readAll(t, src, cfg)
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Data["alpha"] != `{"x":1}` {
		t.Errorf("nested value = %#v, want JSON string", recs[0].Data["alpha"])
	}
}

func TestDecodeRows_KeepsNumberPrecision(t *testing.T) {
	_, recs, err := DecodeRows([]byte(`[{"name":"Acme","id":9007199254740993,"rate":0.1}]`), "")
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if got := recs[0].Data["id"]; got != json.Number("9007199254740993") {
		t.Errorf("id = %#v, want json.Number", got)
	}
	if got := etl.KeyString(recs[0].Data["rate"]); got != "0.1" {
		t.Errorf("rate = %q", got)
	}

	out, err := etl.ProcessData(etl.Dataset{Columns: []string{"name", "id", "rate"}, Rows: recs}, "id")
	if err != nil {
		t.Fatal(err)
	}
	b, err := etl.EncodeJSON(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := `[{"9007199254740993":{"name":"Acme","rate":0.1}}]`; string(b) != want {
		t.Errorf("reshaped = %s, want %s", b, want)
	}
}

func TestDecodeRows_RejectsNonObjectRow(t *testing.T) {
	_, recs, err := DecodeRows([]byte(`[{"name":"Acme"},5,{"name":"B"}]`), "")
	if err == nil {
		t.Fatalf("expected error, got %d rows", len(recs))
	}
}

func TestDecodeRows_NestedValuesKeptVerbatim(t *testing.T) {
	_, recs, err := DecodeRows([]byte(`[{"name":"A","tags":["R&D", 1]}]`), "")
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if got := recs[0].Data["tags"]; got != `["R&D",1]` {
		t.Errorf("tags = %#v", got)
	}
}

func TestJSONFileSource_BadPath(t *testing.T) {
	path := writeFile(t, "companies.json", `{"data":[]}`)
	_, err := (&jsonFileSource{}).Discover(context.Background(), etl.SourceConfig{"filePath": path, "dataPath": "items"})
	if err == nil {
		t.Fatal("expected error for missing data path")
	}
}

// ── HTTP ───────────────────────────────────────────────────

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Acme","revenue":100},{"name":"Beta","revenue":null}]`))
	}))
	defer srv.Close()

	src := &httpSource{}
	cfg := etl.SourceConfig{"url": srv.URL, "headers": `{"X-Token":"abc"}`}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := schema.FieldNames(); !reflect.DeepEqual(got, []string{"name", "revenue"}) {
		t.Errorf("columns = %v", got)
	}
	recs := readAll(t, src, cfg)
	if len(recs) != 2 || recs[1].Data["revenue"] != nil {
		t.Errorf("records = %v", recs)
	}

	_, err = src.Discover(context.Background(), etl.SourceConfig{"url": srv.URL})
	if err == nil {
		t.Error("expected error for 401 response")
	}
}

// ── Database ───────────────────────────────────────────────

type fakeProvider struct {
	pages []*QueryPage
	query string
	err   error
}

func (p *fakeProvider) StreamQuery(ctx context.Context, connID, query string, fetchSize int, fn func(*QueryPage) error) error {
	p.query = query
	if p.err != nil {
		return p.err
	}
	for _, page := range p.pages {
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func TestDatabaseSource(t *testing.T) {
	provider := &fakeProvider{pages: []*QueryPage{
		{Columns: []string{"name", "revenue"}, Rows: [][]any{{"Acme", int64(1)}}, HasMore: true},
		{Columns: []string{"name", "revenue"}, Rows: [][]any{{"Beta", int64(2)}}},
	}}
	SetDBProvider(provider)
	defer SetDBProvider(nil)

	src := &databaseSource{}
	cfg := etl.SourceConfig{"connectionId": "read"}

	schema, err := src.Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := schema.FieldNames(); !reflect.DeepEqual(got, []string{"name", "revenue"}) {
		t.Errorf("columns = %v", got)
	}
	if provider.query != DefaultQuery {
		t.Errorf("query = %q, want default", provider.query)
	}

	recs := readAll(t, src, cfg)
	if len(recs) != 2 || recs[1].Data["name"] != "Beta" {
		t.Errorf("records = %v", recs)
	}
}

func TestDatabaseSource_Errors(t *testing.T) {
	SetDBProvider(&fakeProvider{err: errors.New("no such table")})
	defer SetDBProvider(nil)

	src := &databaseSource{}
	if _, err := src.Discover(context.Background(), etl.SourceConfig{}); err == nil {
		t.Error("expected error without connectionId")
	}
	recCh, errCh := src.Read(context.Background(), etl.SourceConfig{"connectionId": "read"})
	for range recCh {
	}
	if err := <-errCh; err == nil {
		t.Error("expected query error")
	}
}
