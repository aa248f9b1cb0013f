package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/apitel/internal/model"
)

// Adapter turns one source-specific raw payload into a canonical event.
// Implementations are pure mappings: no I/O, no partial results. A payload
// that cannot be normalized yields a *ValidationError and nothing is written.
type Adapter interface {
	Normalize(payload map[string]any, ingestTime time.Time) (model.CanonicalEvent, error)
}

// ValidationError names the payload field that made normalization impossible.
// It is always client-caused and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// ForCategory returns the adapter that produces events of the given category.
func ForCategory(cat model.EventCategory) (Adapter, bool) {
	switch cat {
	case model.CategorySalesforce:
		return salesforceAdapter{}, true
	case model.CategoryMuleSoftPerformance:
		return mulesoftPerformanceAdapter{}, true
	case model.CategoryMuleSoftError:
		return mulesoftErrorAdapter{}, true
	case model.CategoryMuleSoftUptime:
		return mulesoftUptimeAdapter{}, true
	case model.CategoryGeneric:
		return genericAdapter{}, true
	default:
		return nil, false
	}
}

// CategoryFromHint maps an explicit eventCategory discriminator, accepting
// both canonical category names and the bare short forms sources use.
func CategoryFromHint(s string) (model.EventCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "salesforce", "salesforceevent":
		return model.CategorySalesforce, true
	case "performance", "mulesoftperformance":
		return model.CategoryMuleSoftPerformance, true
	case "error", "mulesofterror":
		return model.CategoryMuleSoftError, true
	case "uptime", "mulesoftuptime":
		return model.CategoryMuleSoftUptime, true
	case "generic", "general", "generalevent":
		return model.CategoryGeneric, true
	default:
		return "", false
	}
}

// Classify decides the event category for the universal ingest route by
// inspecting the payload, mirroring how the sources label their events:
// MuleSoft payloads split on field presence, Salesforce is recognized by its
// sourceSystem or one of its well-known event types.
func Classify(payload map[string]any) model.EventCategory {
	eventType, _ := payload["eventType"].(string)
	source := strings.ToLower(stringField(payload, "sourceSystem"))

	if source == "mulesoft" || strings.HasPrefix(eventType, "MuleSoft") {
		switch {
		case hasAny(payload, "latency", "responseTime", "ResponseTime"):
			return model.CategoryMuleSoftPerformance
		case hasAny(payload, "error", "errorType", "errorMessage") || statusAtLeast(payload, 400):
			return model.CategoryMuleSoftError
		case hasAny(payload, "uptime", "availability"):
			return model.CategoryMuleSoftUptime
		default:
			return model.CategoryGeneric
		}
	}

	if strings.Contains(source, "salesforce") {
		return model.CategorySalesforce
	}
	switch eventType {
	case "Login", "API_Usage", "Data_Modification":
		return model.CategorySalesforce
	}
	return model.CategoryGeneric
}

// ---------------- field resolution ----------------

// Field-priority lists are plain data so dispatch stays static and testable.
// The sources disagree on casing for the same semantic field; resolution walks
// the list and takes the first present value.
var (
	salesforceResponseTimeFields = []string{"responseTime", "ResponseTime"}
	mulesoftResponseTimeFields   = []string{"responseTime", "ResponseTime", "latency"}
	statusCodeFields             = []string{"statusCode", "StatusCode"}
	salesforceEndpointFields     = []string{"apiEndpoint", "endpoint"}
	mulesoftEndpointFields       = []string{"apiEndpoint", "endpoint", "apiName"}
)

func firstNumber(payload map[string]any, fields []string) (float64, bool) {
	for _, f := range fields {
		if v, ok := payload[f]; ok {
			if n, ok := asNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func firstString(payload map[string]any, fields []string) (string, bool) {
	for _, f := range fields {
		if s := stringField(payload, f); s != "" {
			return s, true
		}
	}
	return "", false
}

// resolveEndpoint walks the priority list, falls back to the declared event
// type name, then to the Unknown sentinel.
func resolveEndpoint(payload map[string]any, fields []string) string {
	if s, ok := firstString(payload, fields); ok {
		return s
	}
	if et := stringField(payload, "eventType"); et != "" {
		return et
	}
	return model.EndpointUnknown
}

// resolveResponseTime returns the latency in milliseconds, if the payload
// carries a usable measurement. Negative values are treated as absent.
func resolveResponseTime(payload map[string]any, fields []string) *float64 {
	if n, ok := firstNumber(payload, fields); ok && n >= 0 {
		return model.Float64(n)
	}
	return nil
}

func resolveStatusCode(payload map[string]any) *int {
	if n, ok := firstNumber(payload, statusCodeFields); ok {
		return model.Int(int(n))
	}
	return nil
}

// resolveTimestamp parses the payload timestamp, defaulting to ingest time
// when absent. An unparseable timestamp is a validation failure, never a
// silent drop.
func resolveTimestamp(payload map[string]any, ingestTime time.Time) (time.Time, error) {
	v, ok := payload["timestamp"]
	if !ok || v == nil {
		return ingestTime.UTC(), nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &ValidationError{Field: "timestamp", Reason: "not a string"}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "timestamp", Reason: "unparseable: " + s}
}

func resolveEventID(payload map[string]any) string {
	if id := stringField(payload, "eventId"); id != "" {
		return id
	}
	return uuid.NewString()
}

// ---------------- low-level helpers ----------------

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func hasAny(payload map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := payload[k]; ok && v != nil {
			return true
		}
	}
	return false
}

func statusAtLeast(payload map[string]any, min int) bool {
	if n, ok := firstNumber(payload, statusCodeFields); ok {
		return int(n) >= min
	}
	return false
}
