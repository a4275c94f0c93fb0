package sources

import (
	"context"
	"errors"
	"fmt"

	"purify/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads rows from a named relational connection.
// Connector access comes through DBProvider, injected at startup.

// DefaultQuery reads the whole companies table.
const DefaultQuery = "SELECT * FROM companies"

const fetchSize = 500

// QueryPage mirrors dbclient.QueryPage to avoid circular imports.
type QueryPage struct {
	Columns []string
	Rows    [][]any
	HasMore bool
}

// DBProvider abstracts how we get connector access.
// StreamQuery calls fn once per page while holding the connection.
type DBProvider interface {
	StreamQuery(ctx context.Context, connID, query string, fetchSize int, fn func(*QueryPage) error) error
}

var dbProvider DBProvider

// SetDBProvider is called by the app at startup.
func SetDBProvider(p DBProvider) { dbProvider = p }

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []etl.ConfigField{
			{Key: "connectionId", Label: "Connection", Type: "string", Required: true, Help: "ID or name of a configured connection"},
			{Key: "query", Label: "Query", Type: "textarea", Required: false, Default: DefaultQuery},
		},
	}
}

func resolveDBConfig(cfg etl.SourceConfig) (string, string, error) {
	connID, _ := cfg["connectionId"].(string)
	if connID == "" {
		return "", "", fmt.Errorf("connectionId is required")
	}
	query, _ := cfg["query"].(string)
	if query == "" {
		query = DefaultQuery
	}
	if dbProvider == nil {
		return "", "", fmt.Errorf("database provider not initialized")
	}
	return connID, query, nil
}

// errStop ends a stream early once Discover has its columns.
var errStop = errors.New("stop")

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	connID, query, err := resolveDBConfig(cfg)
	if err != nil {
		return nil, err
	}

	var columns []string
	err = dbProvider.StreamQuery(ctx, connID, query, 1, func(p *QueryPage) error {
		columns = p.Columns
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	schema := &etl.Schema{Fields: make([]etl.Field, len(columns))}
	for i, col := range columns {
		schema.Fields[i] = etl.Field{Name: col, Type: "text"}
	}
	return schema, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		connID, query, err := resolveDBConfig(cfg)
		if err != nil {
			errCh <- err
			return
		}

		err = dbProvider.StreamQuery(ctx, connID, query, fetchSize, func(p *QueryPage) error {
			return emitPage(ctx, out, p)
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("query: %w", err)
		}
	}()

	return out, errCh
}

func emitPage(ctx context.Context, out chan<- etl.Record, page *QueryPage) error {
	for _, row := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(row) {
				data[col] = row[i]
			}
		}
		select {
		case out <- etl.Record{Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
