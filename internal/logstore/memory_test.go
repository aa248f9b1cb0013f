package logstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platformbuilds/apitel/internal/model"
)

func sfEvent(id string, ts time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{
		SourceSystem:  model.SourceSalesforce,
		EventCategory: model.CategorySalesforce,
		Timestamp:     ts,
		EventID:       id,
		Endpoint:      "/services/data/v58.0/query/",
	}
}

func TestMemoryQueryEmptyCategoryIsNotAnError(t *testing.T) {
	s := NewMemory(0, 0)
	out, err := s.QueryRange(context.Background(), model.CategoryMuleSoftUptime, time.Unix(0, 0), time.Now())
	if err != nil {
		t.Fatalf("empty category must not error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %d events", len(out))
	}
}

func TestMemoryAppendThenQuery(t *testing.T) {
	s := NewMemory(0, 0)
	ts := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if err := s.Append(context.Background(), sfEvent("e1", ts)); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := s.QueryRange(context.Background(), model.CategorySalesforce, ts.Add(-time.Minute), ts.Add(time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].EventID != "e1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestMemoryRangeBoundsAreHalfOpen(t *testing.T) {
	s := NewMemory(0, 0)
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Append(context.Background(), sfEvent("edge", ts)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// inclusive start
	out, _ := s.QueryRange(context.Background(), model.CategorySalesforce, ts, ts.Add(time.Hour))
	if len(out) != 1 {
		t.Fatalf("event at range start should be included, got %d", len(out))
	}
	// exclusive end
	out, _ = s.QueryRange(context.Background(), model.CategorySalesforce, ts.Add(-time.Hour), ts)
	if len(out) != 0 {
		t.Fatalf("event at range end should be excluded, got %d", len(out))
	}
}

func TestMemoryPropagationDelay(t *testing.T) {
	s := NewMemory(10*time.Minute, 2*time.Minute)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	// First write to an unseen category hides for the long delay.
	if err := s.Append(context.Background(), sfEvent("first", base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Second write to the now-seen category hides for the short delay.
	if err := s.Append(context.Background(), sfEvent("second", base)); err != nil {
		t.Fatalf("append: %v", err)
	}

	query := func() int {
		out, err := s.QueryRange(context.Background(), model.CategorySalesforce, base.Add(-time.Hour), base.Add(time.Hour))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		return len(out)
	}

	if n := query(); n != 0 {
		t.Fatalf("immediately after write: %d events visible, want 0", n)
	}
	clock = base.Add(3 * time.Minute)
	if n := query(); n != 1 {
		t.Fatalf("after steady delay: %d events visible, want 1", n)
	}
	clock = base.Add(11 * time.Minute)
	if n := query(); n != 2 {
		t.Fatalf("after first-write delay: %d events visible, want 2", n)
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	s := NewMemory(0, 0)
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(context.Background(), sfEvent("c", ts))
		}()
	}
	wg.Wait()

	out, err := s.QueryRange(context.Background(), model.CategorySalesforce, ts.Add(-time.Minute), ts.Add(time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 50 {
		t.Fatalf("expected 50 events, got %d", len(out))
	}
}

func TestMemoryAppendCanceledContext(t *testing.T) {
	s := NewMemory(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Append(ctx, sfEvent("x", time.Now()))
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %T", err)
	}
}
