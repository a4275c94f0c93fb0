package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"purify/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Streams company rows out of a CSV export. The header fixes the
// column order the pivot step keeps; short rows are padded with nulls.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Path to the CSV export"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Default: ",", Help: `One character, or "tab"`},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Options: []string{"true", "false"}, Default: "true", Help: "Without a header, columns are named col_1, col_2, ..."},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	f, r, err := openCSV(cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	columns, _, err := csvColumns(r, cfg)
	if err != nil {
		return nil, err
	}
	schema := &etl.Schema{Fields: make([]etl.Field, len(columns))}
	for i, c := range columns {
		schema.Fields[i] = etl.Field{Name: c, Type: "text"}
	}
	return schema, nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, r, err := openCSV(cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer f.Close()

		columns, first, err := csvColumns(r, cfg)
		if err != nil {
			errCh <- err
			return
		}

		row := first
		for {
			if row == nil {
				row, err = r.Read()
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					errCh <- fmt.Errorf("parse csv: %w", err)
					return
				}
			}
			if len(row) > len(columns) {
				line, _ := r.FieldPos(0)
				errCh <- fmt.Errorf("csv line %d: %d cells for %d columns", line, len(row), len(columns))
				return
			}

			data := make(map[string]any, len(columns))
			for i, c := range columns {
				if i < len(row) {
					data[c] = inferCSVValue(row[i])
				} else {
					data[c] = nil
				}
			}
			select {
			case out <- etl.Record{Data: data}:
			case <-ctx.Done():
				return
			}
			row = nil
		}
	}()

	return out, errCh
}

func openCSV(cfg etl.SourceConfig) (*os.File, *csv.Reader, error) {
	filePath, _ := cfg["filePath"].(string)
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	switch delim, _ := cfg["delimiter"].(string); {
	case strings.EqualFold(delim, "tab") || delim == `\t`:
		r.Comma = '\t'
	case delim != "":
		r.Comma = []rune(delim)[0]
	}
	return f, r, nil
}

// csvColumns returns the column names. Without a header the first data
// row is consumed to size the columns and handed back for emitting.
func csvColumns(r *csv.Reader, cfg etl.SourceConfig) (columns, first []string, err error) {
	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("empty csv file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}

	if h, ok := cfg["hasHeader"].(string); ok && strings.EqualFold(h, "false") {
		columns = make([]string, len(head))
		for i := range columns {
			columns[i] = fmt.Sprintf("col_%d", i+1)
		}
		return columns, head, nil
	}

	seen := make(map[string]bool, len(head))
	columns = make([]string, len(head))
	for i, h := range head {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff") // spreadsheet BOM
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("col_%d", i+1)
		}
		if seen[h] {
			return nil, nil, fmt.Errorf("csv header: duplicate column %q", h)
		}
		seen[h] = true
		columns[i] = h
	}
	return columns, nil, nil
}

// inferCSVValue types a cell: empty → nil (later ""), integers → int64,
// decimals → float64, true/false → bool. Codes with a leading zero such as
// company numbers "00445790" stay text.
func inferCSVValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if hasLeadingZero(s) {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}
