package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrNotReadQuery is returned by Execute for statements that would modify
// the source database. The relay only ever reads from SQL connections.
var ErrNotReadQuery = errors.New("only row-returning queries are allowed")

// sqlConnector reads company rows from MySQL, Postgres and SQLite.
// One cursor is open at a time; a new Execute drops the previous one.
type sqlConnector struct {
	driverName string
	db         *sql.DB

	mu      sync.Mutex
	rows    *sql.Rows
	columns []string
	fetched int
}

func newSQLConnector(driverName, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// isReadQuery reports whether query starts with a row-returning keyword,
// ignoring leading comments and parentheses.
func isReadQuery(query string) bool {
	q, ok := skipPreamble(query)
	if !ok {
		return false
	}
	word := q
	if i := strings.IndexFunc(q, func(r rune) bool { return !isKeywordRune(r) }); i >= 0 {
		word = q[:i]
	}
	switch strings.ToUpper(word) {
	case "SELECT", "WITH", "VALUES", "TABLE", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA":
		return true
	}
	return false
}

// skipPreamble drops leading whitespace, comments and open parentheses.
// ok is false when a comment never closes.
func skipPreamble(q string) (string, bool) {
	for {
		q = strings.TrimSpace(q)
		switch {
		case strings.HasPrefix(q, "--"):
			end := strings.IndexByte(q, '\n')
			if end < 0 {
				return "", false
			}
			q = q[end+1:]
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return "", false
			}
			q = q[end+2:]
		case strings.HasPrefix(q, "("):
			q = q[1:]
		default:
			return q, true
		}
	}
}

func isKeywordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// Execute opens a cursor for query and returns its first page.
func (c *sqlConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	if !isReadQuery(query) {
		return nil, fmt.Errorf("execute: %w", ErrNotReadQuery)
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCursorLocked()

	// The cursor lives as long as the caller's context, not a per-call timeout.
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns: %w", err)
	}

	c.rows = rows
	c.columns = cols
	c.fetched = 0
	return c.nextPageLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(_ context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rows == nil {
		return nil, fmt.Errorf("no active cursor: execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	return c.nextPageLocked(fetchSize)
}

// nextPageLocked scans up to fetchSize rows. Row values keep the select
// list's column order; NULL stays nil so the pivot sees a missing value.
func (c *sqlConnector) nextPageLocked(fetchSize int) (*QueryPage, error) {
	page := &QueryPage{Columns: c.columns}
	width := len(c.columns)

	for len(page.Rows) < fetchSize && c.rows.Next() {
		row := make([]any, width)
		dest := make([]any, width)
		for j := range row {
			dest[j] = &row[j]
		}
		if err := c.rows.Scan(dest...); err != nil {
			c.closeCursorLocked()
			return nil, fmt.Errorf("scan row %d: %w", c.fetched+len(page.Rows)+1, err)
		}
		for j, v := range row {
			row[j] = columnValue(v)
		}
		page.Rows = append(page.Rows, row)
	}
	if err := c.rows.Err(); err != nil {
		c.closeCursorLocked()
		return nil, fmt.Errorf("iterate: %w", err)
	}

	c.fetched += len(page.Rows)
	page.TotalFetched = c.fetched
	page.HasMore = len(page.Rows) == fetchSize
	if !page.HasMore {
		c.closeCursorLocked()
	}
	return page, nil
}

// columnValue turns a scanned driver value into what a record field holds.
// Text columns arrive as []byte from mysql and must not alias the driver buffer.
func columnValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

// ── Introspection ──────────────────────────────────────────

// columnsQuery lists (table, column, type) for the connection's own schema,
// columns in declaration order so a pivot on the first column is predictable.
var columnsQuery = map[string]string{
	"sqlite": `SELECT m.name, p.name, p.type
		FROM sqlite_master AS m JOIN pragma_table_info(m.name) AS p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`,
	"mysql": `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`,
	"postgres": `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`,
}

func (c *sqlConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	query, ok := columnsQuery[c.driverName]
	if !ok {
		return nil, fmt.Errorf("introspect: unsupported driver %s", c.driverName)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	schema := &SchemaInfo{}
	for rows.Next() {
		var table string
		var col ColumnInfo
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		n := len(schema.Tables)
		if n == 0 || schema.Tables[n-1].Name != table {
			schema.Tables = append(schema.Tables, TableInfo{Name: table})
			n++
		}
		schema.Tables[n-1].Columns = append(schema.Tables[n-1].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return schema, nil
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) CloseCursor(_ context.Context) {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
}

func (c *sqlConnector) closeCursorLocked() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}
}
