package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/model"
)

// pgUndefinedTable is SQLSTATE 42P01. A category whose table does not exist
// yet has simply never been written to; queries normalize it to empty.
const pgUndefinedTable = "42P01"

// PostgresStore keeps one append-only table per category, created lazily on
// first write — the same lifecycle as a log backend that materializes a
// custom table when a new log type first arrives.
type PostgresStore struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	created map[string]bool
}

func NewPostgres(ctx context.Context, cfg config.PostgresCfg) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &WriteError{Op: "connect", Err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, &WriteError{Op: "connect", Err: err}
	}
	return &PostgresStore{pool: pool, created: map[string]bool{}}, nil
}

func (s *PostgresStore) Append(ctx context.Context, ev model.CanonicalEvent) error {
	table := tableFor(ev.EventCategory)
	if err := s.ensureTable(ctx, table); err != nil {
		return &WriteError{Op: "append", Err: err}
	}

	raw, err := json.Marshal(ev.RawPayload)
	if err != nil {
		return &WriteError{Op: "append", Err: err}
	}
	query := fmt.Sprintf(`INSERT INTO %s
		(event_id, source_system, ts, endpoint, response_time_ms, is_error, status_code, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, table)
	if _, err := s.pool.Exec(ctx, query,
		ev.EventID, string(ev.SourceSystem), ev.Timestamp, ev.Endpoint,
		ev.ResponseTimeMs, ev.IsError, ev.StatusCode, raw,
	); err != nil {
		return &WriteError{Op: "append", Err: err}
	}
	return nil
}

func (s *PostgresStore) QueryRange(ctx context.Context, cat model.EventCategory, from, to time.Time) ([]model.CanonicalEvent, error) {
	table := tableFor(cat)
	query := fmt.Sprintf(`SELECT event_id, source_system, ts, endpoint, response_time_ms, is_error, status_code, raw
		FROM %s WHERE ts >= $1 AND ts < $2`, table)
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return nil, nil // category never written: empty, not a fault
		}
		return nil, err
	}
	defer rows.Close()

	var out []model.CanonicalEvent
	for rows.Next() {
		ev := model.CanonicalEvent{EventCategory: cat}
		var source string
		var raw []byte
		if err := rows.Scan(&ev.EventID, &source, &ev.Timestamp, &ev.Endpoint,
			&ev.ResponseTimeMs, &ev.IsError, &ev.StatusCode, &raw); err != nil {
			return nil, err
		}
		ev.SourceSystem = model.SourceSystem(source)
		ev.Timestamp = ev.Timestamp.UTC()
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &ev.RawPayload)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context, table string) error {
	s.mu.Lock()
	done := s.created[table]
	s.mu.Unlock()
	if done {
		return nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event_id         text NOT NULL,
		source_system    text NOT NULL,
		ts               timestamptz NOT NULL,
		endpoint         text NOT NULL,
		response_time_ms double precision,
		is_error         boolean NOT NULL,
		status_code      integer,
		raw              jsonb
	)`, table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return err
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ts_idx ON %s (ts)`, table, table)
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return err
	}
	s.mu.Lock()
	s.created[table] = true
	s.mu.Unlock()
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// tableFor maps a category to its table name, keeping only identifier-safe
// characters.
func tableFor(cat model.EventCategory) string {
	var b strings.Builder
	b.WriteString("events_")
	for _, r := range strings.ToLower(string(cat)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
