package model

import "time"

// SourceSystem identifies the upstream platform an event originated from.
type SourceSystem string

const (
	SourceSalesforce SourceSystem = "Salesforce"
	SourceMuleSoft   SourceSystem = "MuleSoft"
)

// EventCategory identifies the logical stream an event belongs to. Categories
// double as log-store partitions: every category is queried independently.
type EventCategory string

const (
	CategorySalesforce          EventCategory = "SalesforceEvent"
	CategoryMuleSoftPerformance EventCategory = "MuleSoftPerformance"
	CategoryMuleSoftError       EventCategory = "MuleSoftError"
	CategoryMuleSoftUptime      EventCategory = "MuleSoftUptime"
	CategoryGeneric             EventCategory = "GeneralEvent"
)

// AllCategories lists every known category, in stable order.
var AllCategories = []EventCategory{
	CategorySalesforce,
	CategoryMuleSoftPerformance,
	CategoryMuleSoftError,
	CategoryMuleSoftUptime,
	CategoryGeneric,
}

// EndpointUnknown is the sentinel for events the adapters could not resolve an
// endpoint for. TopEndpoints excludes it.
const EndpointUnknown = "Unknown"

// CanonicalEvent is the normalized, source-agnostic representation of one
// ingested API occurrence. SourceSystem, EventCategory, Timestamp and IsError
// are always populated; every other field may be absent. Absence is carried as
// nil, never as zero, so downstream aggregation can exclude rather than skew.
type CanonicalEvent struct {
	SourceSystem  SourceSystem  `json:"sourceSystem"`
	EventCategory EventCategory `json:"eventCategory"`
	Timestamp     time.Time     `json:"timestamp"`
	EventID       string        `json:"eventId"`

	// Endpoint names the logical API/operation; EndpointUnknown when the
	// payload carried nothing resolvable.
	Endpoint string `json:"endpoint"`

	ResponseTimeMs *float64 `json:"responseTimeMs,omitempty"`
	IsError        bool     `json:"isError"`
	StatusCode     *int     `json:"statusCode,omitempty"`

	// RawPayload retains the original fields for audit/debugging. The
	// aggregator never consults it.
	RawPayload map[string]any `json:"rawPayload,omitempty"`
}

// WindowedSummary is one aggregation bucket: all events of a source system
// whose timestamps fall inside [WindowStart, WindowStart+WindowWidth).
// It is derived on every query and never persisted.
type WindowedSummary struct {
	SourceSystem SourceSystem  `json:"sourceSystem"`
	WindowStart  time.Time     `json:"windowStart"`
	WindowWidth  time.Duration `json:"-"`
	// WindowWidthSeconds mirrors WindowWidth on the wire.
	WindowWidthSeconds int64 `json:"windowWidthSeconds"`

	RequestCount     int64   `json:"requestCount"`
	ErrorCount       int64   `json:"errorCount"`
	ErrorRatePercent float64 `json:"errorRatePercent"`

	// Latency fields are computed only over events that carried a
	// responseTimeMs; a bucket without such events omits them.
	AvgResponseTimeMs *float64 `json:"avgResponseTimeMs,omitempty"`
	MaxResponseTimeMs *float64 `json:"maxResponseTimeMs,omitempty"`
	P50ResponseTimeMs *float64 `json:"p50ResponseTimeMs,omitempty"`
	P95ResponseTimeMs *float64 `json:"p95ResponseTimeMs,omitempty"`
	P99ResponseTimeMs *float64 `json:"p99ResponseTimeMs,omitempty"`
}

// EndpointCount is one row of a TopEndpoints ranking.
type EndpointCount struct {
	Endpoint     string `json:"endpoint"`
	RequestCount int64  `json:"requestCount"`
}

// Ack is the ingestion acknowledgement returned to write callers.
type Ack struct {
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// Float64 and Int are pointer helpers for optional fields.
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }
