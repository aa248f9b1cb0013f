// Package logstore models the append-only event store the pipeline writes to.
//
// The contract deliberately mirrors an eventually-visible backend: a
// successful Append does not guarantee immediate read-back, and QueryRange
// never fails merely because a category holds no visible data yet — "category
// not found" in the underlying store is indistinguishable from "no traffic"
// and is normalized to an empty result. Only genuine backend unavailability
// surfaces, as a *WriteError.
package logstore

import (
	"context"
	"fmt"
	"time"

	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/model"
)

// Store is the append-only persistence surface.
//
// QueryRange returns visible events of one category with Timestamp in
// [from, to), in no guaranteed order. Both operations honor the caller's
// context deadline.
type Store interface {
	Append(ctx context.Context, ev model.CanonicalEvent) error
	QueryRange(ctx context.Context, cat model.EventCategory, from, to time.Time) ([]model.CanonicalEvent, error)
	Close() error
}

// WriteError marks a transient storage failure. The ingest path retries these
// with bounded exponential backoff before surfacing them.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("log store %s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// New builds the configured backend.
func New(ctx context.Context, cfg config.StoreCfg) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(
			time.Duration(cfg.FirstWriteDelaySeconds)*time.Second,
			time.Duration(cfg.SteadyDelaySeconds)*time.Second,
		), nil
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
