// Package aggregator computes windowed summaries over the log store's query
// surface. Summaries are derived on every call and never persisted: two calls
// over the same stored events and range yield identical output.
package aggregator

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	tdigest "github.com/caio/go-tdigest/v4"
	"golang.org/x/sync/errgroup"

	"github.com/platformbuilds/apitel/internal/logstore"
	"github.com/platformbuilds/apitel/internal/model"
)

const defaultWindow = time.Hour

type Aggregator struct {
	store logstore.Store
}

func New(store logstore.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize buckets all visible events of the given categories into
// fixed-width windows, one summary per (sourceSystem, window) pair with at
// least one contributing event.
//
// Category queries fan out in parallel; a category that fails or times out
// contributes nothing (fuzzy union) rather than failing the call. Caller
// cancellation aborts the whole call and discards partial results.
func (a *Aggregator) Summarize(ctx context.Context, categories []model.EventCategory, from, to time.Time, window time.Duration) ([]model.WindowedSummary, error) {
	if window <= 0 {
		window = defaultWindow
	}
	if len(categories) == 0 {
		categories = model.AllCategories
	}

	events, err := a.collect(ctx, categories, from, to)
	if err != nil {
		return nil, err
	}

	// Deterministic accumulation order keeps float results byte-identical
	// across repeated runs.
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].EventID < events[j].EventID
	})

	type bucketKey struct {
		source model.SourceSystem
		start  int64
	}
	type bucket struct {
		requests   int64
		errs       int64
		latencySum float64
		latencyMax float64
		latencyN   int64
		td         *tdigest.TDigest
	}

	buckets := map[bucketKey]*bucket{}
	for _, ev := range events {
		start := ev.Timestamp.Truncate(window)
		key := bucketKey{source: ev.SourceSystem, start: start.Unix()}
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.requests++
		if ev.IsError {
			b.errs++
		}
		// Exclude-don't-zero: events without a latency leave the latency
		// statistics untouched.
		if ev.ResponseTimeMs != nil {
			v := *ev.ResponseTimeMs
			b.latencySum += v
			if b.latencyN == 0 || v > b.latencyMax {
				b.latencyMax = v
			}
			b.latencyN++
			if b.td == nil {
				b.td, _ = tdigest.New()
			}
			if b.td != nil {
				_ = b.td.Add(v)
			}
		}
	}

	out := make([]model.WindowedSummary, 0, len(buckets))
	for key, b := range buckets {
		s := model.WindowedSummary{
			SourceSystem:       key.source,
			WindowStart:        time.Unix(key.start, 0).UTC(),
			WindowWidth:        window,
			WindowWidthSeconds: int64(window / time.Second),
			RequestCount:       b.requests,
			ErrorCount:         b.errs,
		}
		if b.requests > 0 {
			s.ErrorRatePercent = 100 * float64(b.errs) / float64(b.requests)
		}
		if b.latencyN > 0 {
			s.AvgResponseTimeMs = model.Float64(b.latencySum / float64(b.latencyN))
			s.MaxResponseTimeMs = model.Float64(b.latencyMax)
			if b.td != nil && b.td.Count() > 0 {
				s.P50ResponseTimeMs = model.Float64(b.td.Quantile(0.50))
				s.P95ResponseTimeMs = model.Float64(b.td.Quantile(0.95))
				s.P99ResponseTimeMs = model.Float64(b.td.Quantile(0.99))
			}
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceSystem != out[j].SourceSystem {
			return out[i].SourceSystem < out[j].SourceSystem
		}
		return out[i].WindowStart.Before(out[j].WindowStart)
	})
	return out, nil
}

// TopEndpoints ranks a category's endpoints by request count descending, ties
// broken lexically, excluding events with no resolved endpoint.
func (a *Aggregator) TopEndpoints(ctx context.Context, cat model.EventCategory, from, to time.Time, limit int) ([]model.EndpointCount, error) {
	events, err := a.collect(ctx, []model.EventCategory{cat}, from, to)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, ev := range events {
		if ev.Endpoint == "" || ev.Endpoint == model.EndpointUnknown {
			continue
		}
		counts[ev.Endpoint]++
	}

	out := make([]model.EndpointCount, 0, len(counts))
	for ep, n := range counts {
		out = append(out, model.EndpointCount{Endpoint: ep, RequestCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestCount != out[j].RequestCount {
			return out[i].RequestCount > out[j].RequestCount
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// collect fans the range query out across categories and merges the results.
// Union order does not matter to callers; Summarize re-sorts.
func (a *Aggregator) collect(ctx context.Context, categories []model.EventCategory, from, to time.Time) ([]model.CanonicalEvent, error) {
	var mu sync.Mutex
	var events []model.CanonicalEvent

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range categories {
		cat := cat
		g.Go(func() error {
			evs, err := a.store.QueryRange(gctx, cat, from, to)
			if err != nil {
				// Caller walked away: abort and discard everything.
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return err
				}
				// Deadline or backend trouble: indistinguishable from a
				// too-early query under propagation delay, so degrade to
				// no data for this category.
				log.Printf("[aggregator] query %s failed, treating as empty: %v", cat, err)
				return nil
			}
			mu.Lock()
			events = append(events, evs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}
