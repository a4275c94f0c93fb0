package relay

import (
	"context"
	"fmt"
	"time"

	"purify/internal/etl"
)

// Sink is an etl.Destination that posts records to a purify write route.
// The route cleans names itself, so the engine hands Sink raw names.
type Sink struct {
	Timeout time.Duration
}

func (s *Sink) AcceptsRawNames() bool { return true }

func (s *Sink) Write(ctx context.Context, cfg etl.DestinationConfig, records []etl.NamedRecord, mode etl.SyncMode) (int, error) {
	if cfg.URL == "" {
		return 0, fmt.Errorf("http destination needs a url")
	}
	return NewClient(cfg.URL, s.Timeout).PushCompanies(ctx, records, mode)
}
