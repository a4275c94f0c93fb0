package service

import (
	"context"
	"sync"
	"time"
)

// ─────────────────────────────────────────────────────────────
// inflightRuns: at most one run per relay job
// ─────────────────────────────────────────────────────────────

// inflightRuns records when each in-progress job started. Manual, cron
// and file-watch triggers all claim a slot here, and shutdown drains it.
type inflightRuns struct {
	mu      sync.Mutex
	started map[string]time.Time
	drained sync.WaitGroup
}

// claim reserves jobID. When the job is already running it reports the
// start of that run instead, and release is nil.
func (r *inflightRuns) claim(jobID string) (release func(), since time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, busy := r.started[jobID]; busy {
		return nil, at, false
	}
	if r.started == nil {
		r.started = make(map[string]time.Time)
	}
	now := time.Now()
	r.started[jobID] = now
	r.drained.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.started, jobID)
			r.mu.Unlock()
			r.drained.Done()
		})
	}, now, true
}

// wait returns once no run is in flight, or when ctx ends.
func (r *inflightRuns) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.drained.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
