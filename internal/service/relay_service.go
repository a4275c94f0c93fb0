package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"purify/internal/etl"
	"purify/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Relay Service: job runs and their triggers
// ─────────────────────────────────────────────────────────────

const (
	runTimeout     = 5 * time.Minute
	previewTimeout = 30 * time.Second
	watchDebounce  = 500 * time.Millisecond
	runLogLimit    = 50
)

// ErrJobRunning is returned when a run is requested for a job that is in flight.
var ErrJobRunning = errors.New("job is already running")

// RelayService manages relay jobs, scheduling, and file watching.
// Job results are announced through the EventEmitter.
type RelayService struct {
	store       *storage.RelayStore
	engine      *etl.Engine
	emitter     EventEmitter
	inflight    inflightRuns

	// watcher / cron lifecycle
	mu          sync.Mutex
	baseCtx     context.Context
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewRelayService creates a RelayService ready for use.
func NewRelayService(store *storage.RelayStore, engine *etl.Engine, emitter EventEmitter) *RelayService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &RelayService{
		store:   store,
		engine:  engine,
		emitter: emitter,
		baseCtx: context.Background(),
	}
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateRelayJobInput struct {
	Name          string                `json:"name"`
	SourceType    string                `json:"sourceType"`
	SourceConfig  etl.SourceConfig      `json:"sourceConfig"`
	Transforms    []etl.TransformConfig `json:"transforms"`
	DedupeKey     string                `json:"dedupeKey"`
	PivotColumn   string                `json:"pivotColumn"`
	Destination   etl.DestinationConfig `json:"destination"`
	SyncMode      string                `json:"syncMode"`
	TriggerType   string                `json:"triggerType"`
	TriggerConfig string                `json:"triggerConfig"`
	Enabled       bool                  `json:"enabled"`
}

// ValidationError reports a job definition that cannot be saved.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (s *RelayService) normalize(input CreateRelayJobInput) (*etl.RelayJob, error) {
	job := &etl.RelayJob{
		Name:          input.Name,
		SourceType:    input.SourceType,
		SourceCfg:     input.SourceConfig,
		Transforms:    input.Transforms,
		DedupeKey:     input.DedupeKey,
		PivotColumn:   input.PivotColumn,
		Destination:   input.Destination,
		SyncMode:      etl.SyncMode(input.SyncMode),
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if job.SyncMode == "" {
		job.SyncMode = etl.SyncReplace
	}
	if job.TriggerType == "" {
		job.TriggerType = "manual"
	}
	if job.SourceCfg == nil {
		job.SourceCfg = etl.SourceConfig{}
	}

	if job.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if _, err := etl.GetSource(job.SourceType); err != nil {
		return nil, &ValidationError{Field: "sourceType", Reason: err.Error()}
	}
	if job.PivotColumn == "" {
		return nil, &ValidationError{Field: "pivotColumn", Reason: "required"}
	}
	if _, ok := s.engine.Destinations[job.Destination.Type]; !ok {
		return nil, &ValidationError{Field: "destination.type", Reason: fmt.Sprintf("unknown destination %q", job.Destination.Type)}
	}
	switch job.SyncMode {
	case etl.SyncReplace, etl.SyncAppend:
	default:
		return nil, &ValidationError{Field: "syncMode", Reason: fmt.Sprintf("unknown mode %q", job.SyncMode)}
	}
	switch job.TriggerType {
	case "manual":
	case "schedule":
		if _, err := cron.ParseStandard(job.TriggerConfig); err != nil {
			return nil, &ValidationError{Field: "triggerConfig", Reason: err.Error()}
		}
	case "file_watch":
		if job.TriggerConfig == "" {
			return nil, &ValidationError{Field: "triggerConfig", Reason: "watch path required"}
		}
	default:
		return nil, &ValidationError{Field: "triggerType", Reason: fmt.Sprintf("unknown trigger %q", job.TriggerType)}
	}
	return job, nil
}

func (s *RelayService) CreateJob(input CreateRelayJobInput) (*etl.RelayJob, error) {
	job, err := s.normalize(input)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create relay job: %w", err)
	}
	s.RestartWatchers()
	return job, nil
}

func (s *RelayService) GetJob(id string) (*etl.RelayJob, error) {
	return s.store.GetJob(id)
}

func (s *RelayService) ListJobs() ([]etl.RelayJob, error) {
	return s.store.ListJobs()
}

func (s *RelayService) UpdateJob(id string, input CreateRelayJobInput) (*etl.RelayJob, error) {
	existing, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	job, err := s.normalize(input)
	if err != nil {
		return nil, err
	}
	job.ID = existing.ID
	job.CreatedAt = existing.CreatedAt
	job.LastRunAt = existing.LastRunAt
	job.LastStatus = existing.LastStatus
	job.LastError = existing.LastError

	if err := s.store.UpdateJob(job); err != nil {
		return nil, err
	}
	s.RestartWatchers()
	return job, nil
}

func (s *RelayService) DeleteJob(id string) error {
	err := s.store.DeleteJob(id)
	if err == nil {
		s.RestartWatchers()
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single relay job synchronously and records a run log.
func (s *RelayService) RunJob(ctx context.Context, id string) (*etl.RunResult, error) {
	release, since, ok := s.inflight.claim(id)
	if !ok {
		return nil, fmt.Errorf("job %s (started %s ago): %w", id, time.Since(since).Round(time.Second), ErrJobRunning)
	}
	defer release()

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateJobStatus(id, "running", ""); err != nil {
		log.Printf("relay: job %s status update failed: %v", id, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine.Run(runCtx, job)

	runLog := &etl.RunLog{
		JobID:       id,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
		Error:       result.Error,
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		log.Printf("relay: job %s run log failed: %v", id, err)
	}
	if err := s.store.UpdateJobStatus(id, result.Status, result.Error); err != nil {
		log.Printf("relay: job %s status update failed: %v", id, err)
	}

	s.emitter.Emit(ctx, "relay:job-completed", result)
	if result.Status == "success" {
		s.emitter.Emit(ctx, "relay:written", map[string]any{
			"jobId":       id,
			"destination": job.Destination.Type,
			"rows":        result.RowsWritten,
		})
	}

	return result, runErr
}

// ListSources returns the available source descriptors.
func (s *RelayService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the most recent run logs for a job.
func (s *RelayService) ListRunLogs(jobID string) ([]etl.RunLog, error) {
	return s.store.ListRunLogs(jobID, runLogLimit)
}

// ── Preview / Schema Discovery ─────────────────────────────

// Preview reads up to maxRows rows from a source without writing anything.
func (s *RelayService) Preview(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (etl.Dataset, error) {
	previewCtx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()
	return s.engine.Preview(previewCtx, sourceType, cfg, maxRows)
}

func (s *RelayService) DiscoverSchema(ctx context.Context, sourceType string, cfg etl.SourceConfig) (*etl.Schema, error) {
	source, err := etl.GetSource(sourceType)
	if err != nil {
		return nil, err
	}

	discCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	return source.Discover(discCtx, cfg)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// Start arms the schedulers. Triggered runs inherit ctx, so cancelling it
// aborts jobs that are in flight.
func (s *RelayService) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.RestartWatchers()
}

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *RelayService) RestartWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	jobs, err := s.store.ListEnabledTriggeredJobs()
	if err != nil {
		log.Printf("relay watcher: failed to list jobs: %v", err)
		return
	}
	ctx := s.baseCtx

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != "schedule" || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		_, err := c.AddFunc(j.TriggerConfig, func() {
			log.Printf("relay cron: running job %s", jid)
			if _, err := s.RunJob(ctx, jid); err != nil {
				log.Printf("relay cron: job %s failed: %v", jid, err)
			}
		})
		if err != nil {
			log.Printf("relay cron: invalid expression %q for job %s: %v", j.TriggerConfig, jid, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		log.Printf("relay cron: scheduled %d job(s)", scheduled)
	}

	// ── File watchers ──
	pathToJob := make(map[string]string)
	for _, j := range jobs {
		if j.TriggerType != "file_watch" || j.TriggerConfig == "" {
			continue
		}
		absPath, err := filepath.Abs(j.TriggerConfig)
		if err != nil {
			log.Printf("relay watcher: bad path %q: %v", j.TriggerConfig, err)
			continue
		}
		pathToJob[absPath] = j.ID
	}
	if len(pathToJob) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("relay watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	// Watch directories: editors and sqlite replace files rather than write in place.
	watchedDirs := make(map[string]bool)
	for absPath := range pathToJob {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("relay watcher: failed to watch dir %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToJob)

	log.Printf("relay watcher: watching %d file(s)", len(pathToJob))
}

func (s *RelayService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			jobID, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[jobID]; exists {
				t.Stop()
			}
			timers[jobID] = time.AfterFunc(watchDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				log.Printf("relay watcher: file changed %q, running job %s", absPath, jobID)
				if _, err := s.RunJob(ctx, jobID); err != nil {
					log.Printf("relay watcher: run failed for job %s: %v", jobID, err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("relay watcher: error: %v", err)
		}
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *RelayService) WaitRunning(ctx context.Context) {
	s.inflight.wait(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *RelayService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *RelayService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
