package storage_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"purify/internal/domain"
	"purify/internal/etl"
	"purify/internal/storage"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "state", "purify.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ── Relay Jobs ─────────────────────────────────────────────

func TestRelayStore_JobCRUD(t *testing.T) {
	store := storage.NewRelayStore(newTestDB(t))

	job := &etl.RelayJob{
		Name:        "companies to mongo",
		SourceType:  "database",
		SourceCfg:   etl.SourceConfig{"connectionId": "read", "query": "SELECT * FROM companies"},
		Transforms:  []etl.TransformConfig{{Type: "limit", Config: map[string]any{"count": 10.0}}},
		PivotColumn: "name",
		Destination: etl.DestinationConfig{Type: "mongodb", ConnectionID: "write", Collection: "companies"},
		SyncMode:    etl.SyncReplace,
		TriggerType: "manual",
		Enabled:     true,
	}
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID == "" {
		t.Fatal("CreateJob did not assign an ID")
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.PivotColumn != "name" || got.Destination.Collection != "companies" || got.SyncMode != etl.SyncReplace {
		t.Errorf("got %+v", got)
	}
	if got.SourceCfg["query"] != "SELECT * FROM companies" {
		t.Errorf("source config = %v", got.SourceCfg)
	}
	if len(got.Transforms) != 1 || got.Transforms[0].Type != "limit" {
		t.Errorf("transforms = %+v", got.Transforms)
	}
	if !got.LastRunAt.IsZero() {
		t.Errorf("LastRunAt = %v, want zero", got.LastRunAt)
	}

	got.TriggerType = "schedule"
	got.TriggerConfig = "@every 1h"
	if err := store.UpdateJob(got); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	triggered, err := store.ListEnabledTriggeredJobs()
	if err != nil {
		t.Fatalf("ListEnabledTriggeredJobs: %v", err)
	}
	if len(triggered) != 1 || triggered[0].TriggerConfig != "@every 1h" {
		t.Errorf("triggered = %+v", triggered)
	}

	if err := store.UpdateJobStatus(job.ID, "success", ""); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	got, _ = store.GetJob(job.ID)
	if got.LastStatus != "success" || got.LastRunAt.IsZero() {
		t.Errorf("status = %q lastRun = %v", got.LastStatus, got.LastRunAt)
	}

	if err := store.DeleteJob(job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := store.GetJob(job.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetJob after delete: err = %v, want ErrNotFound", err)
	}
	jobs, _ := store.ListJobs()
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(jobs))
	}
}

func TestRelayStore_UpdateMissingJob(t *testing.T) {
	store := storage.NewRelayStore(newTestDB(t))
	err := store.UpdateJob(&etl.RelayJob{ID: "nope", PivotColumn: "name"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ── Run Logs ───────────────────────────────────────────────

func TestRelayStore_RunLogs(t *testing.T) {
	store := storage.NewRelayStore(newTestDB(t))
	job := &etl.RelayJob{Name: "j", SourceType: "csv_file", PivotColumn: "name"}
	if err := store.CreateJob(job); err != nil {
		t.Fatal(err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateRunLog(&etl.RunLog{
			JobID: job.ID, StartedAt: started, FinishedAt: started.Add(time.Second),
			Status: "success", RowsRead: i, RowsWritten: i,
		}); err != nil {
			t.Fatalf("CreateRunLog: %v", err)
		}
	}

	logs, err := store.ListRunLogs(job.ID, 2)
	if err != nil {
		t.Fatalf("ListRunLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].RowsRead != 2 {
		t.Errorf("newest first: got RowsRead %d", logs[0].RowsRead)
	}
}

// ── Connections ────────────────────────────────────────────

func TestDBConnectionStore_Upsert(t *testing.T) {
	store := storage.NewDBConnectionStore(newTestDB(t))

	conn := &domain.DatabaseConnection{Name: "read", Driver: domain.DatabaseDriverSQLite, Host: "/tmp/a.db"}
	if err := store.UpsertConnection(conn); err != nil {
		t.Fatalf("UpsertConnection: %v", err)
	}
	firstID := conn.ID

	again := &domain.DatabaseConnection{Name: "read", Driver: domain.DatabaseDriverSQLite, Host: "/tmp/b.db"}
	if err := store.UpsertConnection(again); err != nil {
		t.Fatalf("UpsertConnection: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("upsert changed ID: %s → %s", firstID, again.ID)
	}

	got, err := store.GetConnectionByName("read")
	if err != nil {
		t.Fatalf("GetConnectionByName: %v", err)
	}
	if got.Host != "/tmp/b.db" || got.ExtraJSON != "{}" {
		t.Errorf("got %+v", got)
	}

	all, _ := store.ListConnections()
	if len(all) != 1 {
		t.Errorf("connections = %d, want 1", len(all))
	}

	if err := store.DeleteConnection(firstID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetConnection(firstID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
