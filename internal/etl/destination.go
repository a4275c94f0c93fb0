package etl

import (
	"context"
	"fmt"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes named records into a target system.
// Implementations: DocumentDestination (MongoDB through the
// connection pool) and relay.Sink (the HTTP write route).

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // clear the target, insert fresh
	SyncAppend  SyncMode = "append"  // add records without clearing
)

// DestinationConfig selects and addresses a destination.
type DestinationConfig struct {
	Type         string `json:"type"` // "mongodb" | "http"
	ConnectionID string `json:"connectionId,omitempty"`
	Collection   string `json:"collection,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Destination writes records to a target system.
type Destination interface {
	Write(ctx context.Context, cfg DestinationConfig, records []NamedRecord, mode SyncMode) (int, error)
}

// RawNameDestination is implemented by destinations whose far end cleans
// names on arrival. The engine sends them uncleaned records.
type RawNameDestination interface {
	Destination
	AcceptsRawNames() bool
}

// ── Document Destination ───────────────────────────────────

// DocumentStore is the slice of the connection pool a DocumentDestination needs.
type DocumentStore interface {
	InsertDocuments(ctx context.Context, connID, collection string, docs [][]byte) (int, error)
	ClearCollection(ctx context.Context, connID, collection string) error
}

// DocumentDestination writes one document per record: {"<name>": <payload>}.
type DocumentDestination struct {
	Store DocumentStore
}

func (w *DocumentDestination) Write(ctx context.Context, cfg DestinationConfig, records []NamedRecord, mode SyncMode) (int, error) {
	if cfg.ConnectionID == "" || cfg.Collection == "" {
		return 0, fmt.Errorf("document destination needs connectionId and collection")
	}

	if mode == SyncReplace {
		if err := w.Store.ClearCollection(ctx, cfg.ConnectionID, cfg.Collection); err != nil {
			return 0, fmt.Errorf("clear target: %w", err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	docs := make([][]byte, len(records))
	for i, rec := range records {
		b, err := EncodeJSON(rec)
		if err != nil {
			return 0, fmt.Errorf("encode record %d: %w", i, err)
		}
		docs[i] = b
	}
	return w.Store.InsertDocuments(ctx, cfg.ConnectionID, cfg.Collection, docs)
}
