package aggregator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/platformbuilds/apitel/internal/logstore"
	"github.com/platformbuilds/apitel/internal/model"
)

var windowT = time.Date(2025, 6, 1, 14, 20, 0, 0, time.UTC)

func seedStore(t *testing.T, events ...model.CanonicalEvent) *logstore.MemoryStore {
	t.Helper()
	s := logstore.NewMemory(0, 0)
	for _, ev := range events {
		if err := s.Append(context.Background(), ev); err != nil {
			t.Fatalf("seed append: %v", err)
		}
	}
	return s
}

func sfEvent(id string, status int, responseTime float64) model.CanonicalEvent {
	return model.CanonicalEvent{
		SourceSystem:   model.SourceSalesforce,
		EventCategory:  model.CategorySalesforce,
		Timestamp:      windowT,
		EventID:        id,
		Endpoint:       "/services/data/v58.0/query/",
		ResponseTimeMs: model.Float64(responseTime),
		IsError:        status >= 400,
		StatusCode:     model.Int(status),
	}
}

func TestSummarizeScenario(t *testing.T) {
	// One healthy and one failing Salesforce call in the same hour.
	s := seedStore(t,
		sfEvent("ok", 200, 120),
		sfEvent("boom", 500, 900),
	)
	agg := New(s)

	out, err := agg.Summarize(context.Background(),
		[]model.EventCategory{model.CategorySalesforce},
		windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(out))
	}
	b := out[0]
	if b.SourceSystem != model.SourceSalesforce {
		t.Fatalf("sourceSystem = %s", b.SourceSystem)
	}
	if !b.WindowStart.Equal(windowT.Truncate(time.Hour)) {
		t.Fatalf("windowStart = %s", b.WindowStart)
	}
	if b.RequestCount != 2 || b.ErrorCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", b.RequestCount, b.ErrorCount)
	}
	if b.ErrorRatePercent != 50.0 {
		t.Fatalf("errorRatePercent = %v, want 50", b.ErrorRatePercent)
	}
	if b.AvgResponseTimeMs == nil || *b.AvgResponseTimeMs != 510.0 {
		t.Fatalf("avgResponseTimeMs = %v, want 510", b.AvgResponseTimeMs)
	}
	if b.MaxResponseTimeMs == nil || *b.MaxResponseTimeMs != 900.0 {
		t.Fatalf("maxResponseTimeMs = %v, want 900", b.MaxResponseTimeMs)
	}
}

func TestSummarizeExcludesAbsentLatency(t *testing.T) {
	// Two events with latency, one without: the average must ignore the
	// third event entirely while the request count includes it.
	noLatency := sfEvent("nolat", 200, 0)
	noLatency.ResponseTimeMs = nil
	s := seedStore(t, sfEvent("a", 200, 100), sfEvent("b", 200, 300), noLatency)
	agg := New(s)

	out, err := agg.Summarize(context.Background(),
		[]model.EventCategory{model.CategorySalesforce},
		windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	b := out[0]
	if b.RequestCount != 3 {
		t.Fatalf("requestCount = %d, want 3", b.RequestCount)
	}
	if b.AvgResponseTimeMs == nil || *b.AvgResponseTimeMs != 200.0 {
		t.Fatalf("avgResponseTimeMs = %v, want 200 over the 2 measured events", b.AvgResponseTimeMs)
	}
}

func TestSummarizeLatencyFieldsOmittedWhenNoSamples(t *testing.T) {
	ev := model.CanonicalEvent{
		SourceSystem:  model.SourceMuleSoft,
		EventCategory: model.CategoryMuleSoftUptime,
		Timestamp:     windowT,
		EventID:       "up1",
		Endpoint:      model.EndpointUnknown,
	}
	agg := New(seedStore(t, ev))

	out, err := agg.Summarize(context.Background(),
		[]model.EventCategory{model.CategoryMuleSoftUptime},
		windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	b := out[0]
	if b.RequestCount != 1 {
		t.Fatalf("requestCount = %d, want 1", b.RequestCount)
	}
	if b.AvgResponseTimeMs != nil || b.MaxResponseTimeMs != nil {
		t.Fatal("latency fields must be omitted, not zeroed")
	}
	if b.ErrorRatePercent != 0 {
		t.Fatalf("errorRatePercent = %v, want 0", b.ErrorRatePercent)
	}
}

func TestSummarizeEmptyRange(t *testing.T) {
	agg := New(logstore.NewMemory(0, 0))
	out, err := agg.Summarize(context.Background(), nil,
		windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("summarize over empty store: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no buckets, got %d", len(out))
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	s := seedStore(t,
		sfEvent("a", 200, 120), sfEvent("b", 500, 900), sfEvent("c", 201, 333),
		model.CanonicalEvent{
			SourceSystem:  model.SourceMuleSoft,
			EventCategory: model.CategoryMuleSoftError,
			Timestamp:     windowT.Add(7 * time.Minute),
			EventID:       "err1",
			Endpoint:      "/api/orders",
			IsError:       true,
		},
	)
	agg := New(s)

	run := func() []model.WindowedSummary {
		out, err := agg.Summarize(context.Background(), nil,
			windowT.Add(-time.Hour), windowT.Add(time.Hour), 5*time.Minute)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		return out
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("summarize is not idempotent:\n%+v\nvs\n%+v", first, second)
	}
}

func TestSummarizeSplitsWindowsAndSources(t *testing.T) {
	later := sfEvent("late", 200, 50)
	later.Timestamp = windowT.Add(time.Hour)
	mule := model.CanonicalEvent{
		SourceSystem:   model.SourceMuleSoft,
		EventCategory:  model.CategoryMuleSoftPerformance,
		Timestamp:      windowT,
		EventID:        "m1",
		Endpoint:       "/api/customers",
		ResponseTimeMs: model.Float64(80),
	}
	agg := New(seedStore(t, sfEvent("a", 200, 100), later, mule))

	out, err := agg.Summarize(context.Background(), nil,
		windowT.Add(-time.Hour), windowT.Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 buckets (2 sources, 2 windows), got %d: %+v", len(out), out)
	}
	// Sorted by sourceSystem then windowStart.
	if out[0].SourceSystem != model.SourceMuleSoft {
		t.Fatalf("bucket order wrong: %+v", out)
	}
	if !out[1].WindowStart.Before(out[2].WindowStart) {
		t.Fatalf("window order wrong: %+v", out)
	}
}

func TestTopEndpoints(t *testing.T) {
	mk := func(id, endpoint string) model.CanonicalEvent {
		return model.CanonicalEvent{
			SourceSystem:  model.SourceMuleSoft,
			EventCategory: model.CategoryMuleSoftPerformance,
			Timestamp:     windowT,
			EventID:       id,
			Endpoint:      endpoint,
		}
	}
	agg := New(seedStore(t,
		mk("1", "/api/orders"), mk("2", "/api/orders"),
		mk("3", "/api/customers"), mk("4", "/api/customers"),
		mk("5", "/api/payments"),
		mk("6", model.EndpointUnknown),
	))

	top, err := agg.TopEndpoints(context.Background(), model.CategoryMuleSoftPerformance,
		windowT.Add(-time.Hour), windowT.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("topEndpoints: %v", err)
	}
	want := []model.EndpointCount{
		{Endpoint: "/api/customers", RequestCount: 2}, // tie broken lexically
		{Endpoint: "/api/orders", RequestCount: 2},
		{Endpoint: "/api/payments", RequestCount: 1},
	}
	if !reflect.DeepEqual(top, want) {
		t.Fatalf("topEndpoints = %+v, want %+v", top, want)
	}
}

func TestTopEndpointsLimit(t *testing.T) {
	mk := func(id, endpoint string) model.CanonicalEvent {
		return model.CanonicalEvent{
			SourceSystem:  model.SourceSalesforce,
			EventCategory: model.CategorySalesforce,
			Timestamp:     windowT,
			EventID:       id,
			Endpoint:      endpoint,
		}
	}
	agg := New(seedStore(t, mk("1", "/a"), mk("2", "/b"), mk("3", "/c")))
	top, err := agg.TopEndpoints(context.Background(), model.CategorySalesforce,
		windowT.Add(-time.Hour), windowT.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("topEndpoints: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("limit not applied: %+v", top)
	}
}

func TestUptimeCountsInSummaryButNotTopEndpoints(t *testing.T) {
	ev := model.CanonicalEvent{
		SourceSystem:  model.SourceMuleSoft,
		EventCategory: model.CategoryMuleSoftUptime,
		Timestamp:     windowT,
		EventID:       "up1",
		Endpoint:      model.EndpointUnknown,
	}
	agg := New(seedStore(t, ev))

	sum, err := agg.Summarize(context.Background(),
		[]model.EventCategory{model.CategoryMuleSoftUptime},
		windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sum) != 1 || sum[0].RequestCount != 1 {
		t.Fatalf("uptime event not counted: %+v", sum)
	}

	top, err := agg.TopEndpoints(context.Background(), model.CategoryMuleSoftUptime,
		windowT.Add(-time.Hour), windowT.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("topEndpoints: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("uptime events must not rank endpoints: %+v", top)
	}
}

// flakyStore fails queries for one category while the other succeeds.
type flakyStore struct {
	*logstore.MemoryStore
	failCat model.EventCategory
}

func (f *flakyStore) QueryRange(ctx context.Context, cat model.EventCategory, from, to time.Time) ([]model.CanonicalEvent, error) {
	if cat == f.failCat {
		return nil, errors.New("backend shard down")
	}
	return f.MemoryStore.QueryRange(ctx, cat, from, to)
}

func TestSummarizeFuzzyUnion(t *testing.T) {
	mem := seedStore(t, sfEvent("a", 200, 100))
	agg := New(&flakyStore{MemoryStore: mem, failCat: model.CategoryMuleSoftError})

	out, err := agg.Summarize(context.Background(),
		[]model.EventCategory{model.CategorySalesforce, model.CategoryMuleSoftError},
		windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("one failing category must not fail the union: %v", err)
	}
	if len(out) != 1 || out[0].SourceSystem != model.SourceSalesforce {
		t.Fatalf("healthy category lost: %+v", out)
	}
}

func TestSummarizeCallerCancellation(t *testing.T) {
	agg := New(seedStore(t, sfEvent("a", 200, 100)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Summarize(ctx, nil, windowT.Add(-time.Hour), windowT.Add(time.Hour), time.Hour)
	if err == nil {
		t.Fatal("expected error after caller cancellation")
	}
}
