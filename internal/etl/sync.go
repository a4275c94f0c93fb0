package etl

import (
	"context"
	"fmt"
	"time"
)

// ── RelayJob ───────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → pivot/reshape →
// name cleaning → destination.Write.

// RelayJob holds the configuration for a single relay run.
type RelayJob struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	SourceType    string            `json:"sourceType"`
	SourceCfg     SourceConfig      `json:"sourceConfig"`
	Transforms    []TransformConfig `json:"transforms,omitempty"`
	DedupeKey     string            `json:"dedupeKey,omitempty"`
	PivotColumn   string            `json:"pivotColumn"`
	Destination   DestinationConfig `json:"destination"`
	SyncMode      SyncMode          `json:"syncMode"`
	TriggerType   string            `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string            `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool              `json:"enabled"`
	LastRunAt     time.Time         `json:"lastRunAt"`
	LastStatus    string            `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError     string            `json:"lastError"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// RunResult is the outcome of running a relay job.
type RunResult struct {
	JobID       string        `json:"jobId"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunLog is a historical record of a relay run.
type RunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs relay jobs using the registered sources.
type Engine struct {
	Destinations map[string]Destination // keyed by DestinationConfig.Type
	Cleaner      NameCleaner
}

// Run executes a relay job end-to-end.
func (e *Engine) Run(ctx context.Context, job *RelayJob) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{JobID: job.ID}
	fail := func(stage string, err error) (*RunResult, error) {
		result.Status = "error"
		result.Error = fmt.Sprintf("%s: %s", stage, err)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%s: %w", stage, err)
	}

	dest, ok := e.Destinations[job.Destination.Type]
	if !ok {
		return fail("destination", fmt.Errorf("unknown destination type: %q", job.Destination.Type))
	}

	// 1. Resolve source + discover column order.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail("source", err)
	}
	schema, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail("discover", err)
	}

	// 2. Read + transform.
	recCh, errCh := source.Read(ctx, job.SourceCfg)
	transformers := BuildTransformers(job.Transforms, job.DedupeKey)

	var records []Record
	for rec := range recCh {
		result.RowsRead++
		if transformed, keep := ApplyTransformers(rec, transformers); keep {
			records = append(records, transformed)
		}
	}
	if err := <-errCh; err != nil {
		return fail("read", err)
	}
	// Sources go quiet on cancellation; what arrived is not the whole table.
	if err := ctx.Err(); err != nil {
		return fail("read", err)
	}

	// 3. Pivot + reshape.
	reshaped, err := ProcessData(FillNulls(NewDataset(schema, records)), job.PivotColumn)
	if err != nil {
		return fail("reshape", err)
	}
	named := make([]NamedRecord, len(reshaped))
	for i, r := range reshaped {
		named[i] = r.Named()
	}

	// 4. Clean names unless the destination does it on arrival.
	if raw, ok := dest.(RawNameDestination); !ok || !raw.AcceptsRawNames() {
		if e.Cleaner == nil {
			return fail("clean", fmt.Errorf("no name cleaner configured"))
		}
		named = RewriteKeys(named, e.Cleaner)
	}

	// 5. Write.
	written, err := dest.Write(ctx, job.Destination, named, job.SyncMode)
	if err != nil {
		result.RowsWritten = written
		return fail("write", err)
	}

	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)
	return result, nil
}

// Preview executes only the source read phase and returns up to maxRows rows.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) (Dataset, error) {
	if maxRows <= 0 {
		maxRows = 100
	}
	source, err := GetSource(sourceType)
	if err != nil {
		return Dataset{}, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return Dataset{}, fmt.Errorf("discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	truncated := false
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			truncated = true
			break
		}
	}

	// Stop the reader and drain what it already buffered.
	cancel()
	for range recCh {
	}
	if err := <-errCh; err != nil && !truncated {
		return NewDataset(schema, records), err
	}
	return NewDataset(schema, records), nil
}
