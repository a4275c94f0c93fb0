package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"purify/internal/dbclient"
	"purify/internal/domain"
	"purify/internal/etl"
	"purify/internal/etl/sources"
	"purify/internal/secret"
	"purify/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Database Service: connection registry and connector pool
// ─────────────────────────────────────────────────────────────

// CreateDBConnInput is the service-layer DTO for creating/updating connections.
// The mapstructure tags let the same shape be read from the config file.
type CreateDBConnInput struct {
	Name      string `json:"name" mapstructure:"name"`
	Driver    string `json:"driver" mapstructure:"driver"`
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
	Database  string `json:"database" mapstructure:"database"`
	Username  string `json:"username" mapstructure:"username"`
	Password  string `json:"password" mapstructure:"password"`
	SSLMode   string `json:"sslMode" mapstructure:"ssl-mode"`
	ExtraJSON string `json:"extraJson" mapstructure:"extra-json"`
}

func (in CreateDBConnInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	if !domain.DatabaseDriver(in.Driver).Valid() {
		return fmt.Errorf("unsupported driver: %q", in.Driver)
	}
	return nil
}

func (in CreateDBConnInput) apply(conn *domain.DatabaseConnection) {
	conn.Name = in.Name
	conn.Driver = domain.DatabaseDriver(in.Driver)
	conn.Host = in.Host
	conn.Port = in.Port
	conn.Database = in.Database
	conn.Username = in.Username
	conn.SSLMode = in.SSLMode
	conn.ExtraJSON = in.ExtraJSON
}

// DatabaseService manages external database connections. Connectors are
// opened lazily and reused; each one serializes cursor use, so a whole-table
// read holds its connection until the last page is consumed.
type DatabaseService struct {
	connStore *storage.DBConnectionStore
	secrets   secret.SecretStore

	mu               sync.Mutex
	activeConnectors map[string]*connEntry
}

type connEntry struct {
	connector dbclient.Connector
	createdAt time.Time

	cursorMu sync.Mutex
}

// NewDatabaseService creates a DatabaseService.
func NewDatabaseService(connStore *storage.DBConnectionStore, secrets secret.SecretStore) *DatabaseService {
	return &DatabaseService{
		connStore:        connStore,
		secrets:          secrets,
		activeConnectors: make(map[string]*connEntry),
	}
}

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.connStore.ListConnections()
}

// GetConnection looks a connection up by ID, then by name.
func (s *DatabaseService) GetConnection(idOrName string) (*domain.DatabaseConnection, error) {
	conn, err := s.connStore.GetConnection(idOrName)
	if errors.Is(err, storage.ErrNotFound) {
		return s.connStore.GetConnectionByName(idOrName)
	}
	return conn, err
}

func (s *DatabaseService) CreateConnection(input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	conn := &domain.DatabaseConnection{}
	input.apply(conn)
	if err := s.connStore.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if input.Password != "" && s.secrets != nil {
		_ = s.secrets.Set("db:"+conn.ID, []byte(input.Password))
	}
	return conn, nil
}

func (s *DatabaseService) UpdateConnection(id string, input CreateDBConnInput) error {
	if err := input.validate(); err != nil {
		return err
	}
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return err
	}
	input.apply(conn)
	if err := s.connStore.UpdateConnection(conn); err != nil {
		return err
	}
	if input.Password != "" && s.secrets != nil {
		_ = s.secrets.Set("db:"+id, []byte(input.Password))
	}
	// Next use re-connects with the new config.
	s.evict(id)
	return nil
}

func (s *DatabaseService) DeleteConnection(id string) error {
	s.evict(id)
	if s.secrets != nil {
		_ = s.secrets.Delete("db:" + id)
	}
	return s.connStore.DeleteConnection(id)
}

// SeedConnections upserts connections declared in configuration, matched by name.
func (s *DatabaseService) SeedConnections(inputs []CreateDBConnInput) error {
	for _, in := range inputs {
		if err := in.validate(); err != nil {
			return fmt.Errorf("seed connection %q: %w", in.Name, err)
		}
		conn := &domain.DatabaseConnection{}
		in.apply(conn)
		if err := s.connStore.UpsertConnection(conn); err != nil {
			return fmt.Errorf("seed connection %q: %w", in.Name, err)
		}
		if in.Password != "" && s.secrets != nil {
			_ = s.secrets.Set("db:"+conn.ID, []byte(in.Password))
		}
		s.evict(conn.ID)
	}
	return nil
}

// ── Reads ──────────────────────────────────────────────────

// StreamQuery runs query on a connection and calls fn once per page.
// The connection's cursor is held until fn has seen the last page or
// returns an error; an early stop releases the cursor.
func (s *DatabaseService) StreamQuery(
	ctx context.Context,
	connID, query string,
	fetchSize int,
	fn func(*sources.QueryPage) error,
) error {
	entry, err := s.getOrCreate(connID)
	if err != nil {
		return err
	}
	entry.cursorMu.Lock()
	defer entry.cursorMu.Unlock()

	page, err := entry.connector.Execute(ctx, query, fetchSize)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	for {
		if err := fn(&sources.QueryPage{Columns: page.Columns, Rows: page.Rows, HasMore: page.HasMore}); err != nil {
			if page.HasMore {
				entry.connector.CloseCursor(ctx)
			}
			return err
		}
		if !page.HasMore {
			return nil
		}
		if page, err = entry.connector.FetchMore(ctx, fetchSize); err != nil {
			return fmt.Errorf("fetch rows: %w", err)
		}
	}
}

// ReadDataset reads every row of query into a Dataset.
func (s *DatabaseService) ReadDataset(ctx context.Context, connID, query string) (etl.Dataset, error) {
	ds := etl.Dataset{Columns: []string{}, Rows: []etl.Record{}}
	err := s.StreamQuery(ctx, connID, query, 500, func(p *sources.QueryPage) error {
		if len(ds.Columns) == 0 {
			ds.Columns = append(ds.Columns, p.Columns...)
		}
		for _, row := range p.Rows {
			data := make(map[string]any, len(p.Columns))
			for i, col := range p.Columns {
				if i < len(row) {
					data[col] = row[i]
				}
			}
			ds.Rows = append(ds.Rows, etl.Record{Data: data})
		}
		return nil
	})
	if err != nil {
		return etl.Dataset{}, err
	}
	return ds, nil
}

// ── Writes ─────────────────────────────────────────────────

func (s *DatabaseService) documentWriter(connID string) (dbclient.DocumentWriter, error) {
	entry, err := s.getOrCreate(connID)
	if err != nil {
		return nil, err
	}
	w, ok := entry.connector.(dbclient.DocumentWriter)
	if !ok {
		return nil, fmt.Errorf("connection %s is not a document store", connID)
	}
	return w, nil
}

// InsertDocuments writes docs into collection as a single batch.
func (s *DatabaseService) InsertDocuments(ctx context.Context, connID, collection string, docs [][]byte) (int, error) {
	w, err := s.documentWriter(connID)
	if err != nil {
		return 0, err
	}
	n, err := w.InsertDocuments(ctx, collection, docs)
	if err != nil {
		return n, fmt.Errorf("insert documents: %w", err)
	}
	return n, nil
}

func (s *DatabaseService) ClearCollection(ctx context.Context, connID, collection string) error {
	w, err := s.documentWriter(connID)
	if err != nil {
		return err
	}
	if err := w.ClearCollection(ctx, collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}

// ── Test + Introspect ──────────────────────────────────────

func (s *DatabaseService) TestConnection(ctx context.Context, id string) error {
	entry, err := s.getOrCreate(id)
	if err != nil {
		return err
	}
	return entry.connector.TestConnection(ctx)
}

func (s *DatabaseService) Introspect(ctx context.Context, connectionID string) (*dbclient.SchemaInfo, error) {
	entry, err := s.getOrCreate(connectionID)
	if err != nil {
		return nil, err
	}
	return entry.connector.Introspect(ctx)
}

// ── Connector Pool ─────────────────────────────────────────

func (s *DatabaseService) getOrCreate(idOrName string) (*connEntry, error) {
	s.mu.Lock()
	if e, ok := s.activeConnectors[idOrName]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	conn, err := s.GetConnection(idOrName)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", idOrName, err)
	}

	s.mu.Lock()
	if e, ok := s.activeConnectors[conn.ID]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	connector, err := dbclient.NewConnector(conn, s.password(conn))
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[conn.ID]; ok {
		// Lost a race with another opener.
		_ = connector.Close()
		return e, nil
	}
	entry := &connEntry{connector: connector, createdAt: time.Now()}
	s.activeConnectors[conn.ID] = entry
	return entry, nil
}

// password tries the secret stored under the connection ID, then under its name.
func (s *DatabaseService) password(conn *domain.DatabaseConnection) string {
	if s.secrets == nil {
		return ""
	}
	for _, key := range []string{"db:" + conn.ID, "db:" + conn.Name} {
		if pw, err := s.secrets.Get(key); err == nil && len(pw) > 0 {
			return string(pw)
		}
	}
	return ""
}

func (s *DatabaseService) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[id]; ok {
		_ = e.connector.Close()
		delete(s.activeConnectors, id)
	}
}

// Close tears down all active database connectors.
func (s *DatabaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.activeConnectors {
		_ = entry.connector.Close()
		delete(s.activeConnectors, id)
	}
}
