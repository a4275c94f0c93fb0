package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"purify/internal/etl"

	"github.com/google/uuid"
)

// RelayStore implements persistence for relay jobs and run logs.
type RelayStore struct {
	db *DB
}

// NewRelayStore creates a new RelayStore.
func NewRelayStore(db *DB) *RelayStore {
	return &RelayStore{db: db}
}

const jobColumns = `id, name, source_type, source_config, transforms, dedupe_key, pivot_column,
	destination, sync_mode, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

// ── RelayJob CRUD ──────────────────────────────────────────

func (s *RelayStore) CreateJob(job *etl.RelayJob) error {
	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	srcCfg, transforms, dest, err := encodeJobJSON(job)
	if err != nil {
		return err
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO relay_jobs (id, name, source_type, source_config, transforms, dedupe_key, pivot_column,
		 destination, sync_mode, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.SourceType, srcCfg, transforms, job.DedupeKey, job.PivotColumn,
		dest, job.SyncMode, job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *RelayStore) GetJob(id string) (*etl.RelayJob, error) {
	job, err := scanJob(s.db.conn.QueryRow(`SELECT `+jobColumns+` FROM relay_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relay job %s: %w", id, ErrNotFound)
	}
	return job, err
}

func (s *RelayStore) UpdateJob(job *etl.RelayJob) error {
	job.UpdatedAt = time.Now()
	srcCfg, transforms, dest, err := encodeJobJSON(job)
	if err != nil {
		return err
	}

	res, err := s.db.conn.Exec(
		`UPDATE relay_jobs SET name=?, source_type=?, source_config=?, transforms=?, dedupe_key=?,
		 pivot_column=?, destination=?, sync_mode=?, trigger_type=?, trigger_config=?,
		 enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceType, srcCfg, transforms, job.DedupeKey,
		job.PivotColumn, dest, job.SyncMode, job.TriggerType, job.TriggerConfig,
		job.Enabled, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("relay job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (s *RelayStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now()
	_, err := s.db.conn.Exec(
		`UPDATE relay_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *RelayStore) DeleteJob(id string) error {
	// Run logs reference the job.
	if _, err := s.db.conn.Exec(`DELETE FROM relay_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.conn.Exec(`DELETE FROM relay_jobs WHERE id = ?`, id)
	return err
}

func (s *RelayStore) ListJobs() ([]etl.RelayJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM relay_jobs ORDER BY created_at ASC`)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or file_watch trigger.
func (s *RelayStore) ListEnabledTriggeredJobs() ([]etl.RelayJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM relay_jobs
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		ORDER BY created_at ASC`)
}

func (s *RelayStore) queryJobs(query string) ([]etl.RelayJob, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []etl.RelayJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*etl.RelayJob, error) {
	job := &etl.RelayJob{}
	var srcCfg, transforms, dest string
	var lastRun sql.NullTime
	if err := row.Scan(
		&job.ID, &job.Name, &job.SourceType, &srcCfg, &transforms, &job.DedupeKey, &job.PivotColumn,
		&dest, &job.SyncMode, &job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&lastRun, &job.LastStatus, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}
	if err := json.Unmarshal([]byte(srcCfg), &job.SourceCfg); err != nil {
		return nil, fmt.Errorf("job %s source config: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(transforms), &job.Transforms); err != nil {
		return nil, fmt.Errorf("job %s transforms: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(dest), &job.Destination); err != nil {
		return nil, fmt.Errorf("job %s destination: %w", job.ID, err)
	}
	return job, nil
}

func encodeJobJSON(job *etl.RelayJob) (srcCfg, transforms, dest string, err error) {
	b, err := json.Marshal(job.SourceCfg)
	if err != nil {
		return "", "", "", fmt.Errorf("encode source config: %w", err)
	}
	srcCfg = string(b)
	if b, err = json.Marshal(job.Transforms); err != nil {
		return "", "", "", fmt.Errorf("encode transforms: %w", err)
	}
	transforms = string(b)
	if b, err = json.Marshal(job.Destination); err != nil {
		return "", "", "", fmt.Errorf("encode destination: %w", err)
	}
	dest = string(b)
	return srcCfg, transforms, dest, nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *RelayStore) CreateRunLog(log *etl.RunLog) error {
	log.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO relay_run_logs (id, job_id, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.StartedAt, log.FinishedAt, log.Status, log.RowsRead, log.RowsWritten, log.Error,
	)
	return err
}

func (s *RelayStore) ListRunLogs(jobID string, limit int) ([]etl.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, rows_read, rows_written, error
		 FROM relay_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []etl.RunLog{}
	for rows.Next() {
		var l etl.RunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
