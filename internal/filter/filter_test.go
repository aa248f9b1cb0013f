package filter

import (
	"testing"
	"time"

	"github.com/platformbuilds/apitel/internal/model"
)

func sampleEvent() model.CanonicalEvent {
	status := 503
	rt := 1200.0
	return model.CanonicalEvent{
		EventID:        "ev-1",
		SourceSystem:   model.SourceMuleSoft,
		EventCategory:  model.CategoryMuleSoftPerformance,
		Endpoint:       "/api/orders",
		StatusCode:     &status,
		ResponseTimeMs: &rt,
		IsError:        true,
		Timestamp:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		RawPayload:     map[string]any{"environment": "prod"},
	}
}

func TestEmptyExpressionKeepsAll(t *testing.T) {
	f := New("")
	if !f.Keep(sampleEvent()) {
		t.Fatal("empty filter must keep everything")
	}
}

func TestNilFilterKeepsAll(t *testing.T) {
	var f *Filter
	if !f.Keep(sampleEvent()) {
		t.Fatal("nil filter must keep everything")
	}
}

func TestKeepAndDrop(t *testing.T) {
	cases := []struct {
		expr string
		keep bool
	}{
		{`status_code < 500`, false},
		{`status_code >= 500`, true},
		{`source_system == "MuleSoft"`, true},
		{`source_system == "Salesforce"`, false},
		{`endpoint.startsWith("/api/")`, true},
		{`response_time_ms < 1000.0`, false},
		{`is_error`, true},
		{`!is_error`, false},
	}
	for _, tc := range cases {
		f := New(tc.expr)
		if got := f.Keep(sampleEvent()); got != tc.keep {
			t.Fatalf("expr %q: keep = %v, want %v", tc.expr, got, tc.keep)
		}
	}
}

func TestAbsentFieldsUseSentinels(t *testing.T) {
	ev := model.CanonicalEvent{
		EventID:       "ev-2",
		SourceSystem:  model.SourceMuleSoft,
		EventCategory: model.CategoryMuleSoftUptime,
		Endpoint:      model.EndpointUnknown,
		Timestamp:     time.Now(),
	}
	if !New(`status_code == 0`).Keep(ev) {
		t.Fatal("absent status_code should read as 0")
	}
	if !New(`response_time_ms < 0.0`).Keep(ev) {
		t.Fatal("absent response_time_ms should read as -1.0")
	}
}

func TestRawPayloadAccess(t *testing.T) {
	f := New(`raw.environment == "prod"`)
	if !f.Keep(sampleEvent()) {
		t.Fatal("raw payload field should be reachable")
	}
}

func TestBrokenExpressionFailsOpen(t *testing.T) {
	f := New(`this is (not CEL`)
	if !f.Keep(sampleEvent()) {
		t.Fatal("uncompilable filter must pass events through")
	}
}

func TestEvalErrorFailsOpen(t *testing.T) {
	// raw.missing errors at eval time on events without that key.
	f := New(`raw.missing == "x"`)
	ev := sampleEvent()
	if !f.Keep(ev) {
		t.Fatal("eval error must keep the event")
	}
}

func TestNonBoolResultFailsOpen(t *testing.T) {
	f := New(`status_code + 1`)
	if !f.Keep(sampleEvent()) {
		t.Fatal("non-boolean result must keep the event")
	}
}
