package adapter

import (
	"time"

	"github.com/platformbuilds/apitel/internal/model"
)

// mulesoftPerformanceAdapter normalizes MuleSoft latency events. There is no
// success flag in this category, so only the status code can flag an error.
type mulesoftPerformanceAdapter struct{}

func (mulesoftPerformanceAdapter) Normalize(payload map[string]any, ingestTime time.Time) (model.CanonicalEvent, error) {
	if len(payload) == 0 {
		return model.CanonicalEvent{}, &ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	ts, err := resolveTimestamp(payload, ingestTime)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	status := resolveStatusCode(payload)

	return model.CanonicalEvent{
		SourceSystem:   model.SourceMuleSoft,
		EventCategory:  model.CategoryMuleSoftPerformance,
		Timestamp:      ts,
		EventID:        resolveEventID(payload),
		Endpoint:       resolveEndpoint(payload, mulesoftEndpointFields),
		ResponseTimeMs: resolveResponseTime(payload, mulesoftResponseTimeFields),
		IsError:        status != nil && *status >= 400,
		StatusCode:     status,
		RawPayload:     payload,
	}, nil
}

// mulesoftErrorAdapter normalizes MuleSoft error events. Every event of this
// category is definitionally an error, whatever the status code says, and the
// category carries no latency measurement.
type mulesoftErrorAdapter struct{}

func (mulesoftErrorAdapter) Normalize(payload map[string]any, ingestTime time.Time) (model.CanonicalEvent, error) {
	if len(payload) == 0 {
		return model.CanonicalEvent{}, &ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	ts, err := resolveTimestamp(payload, ingestTime)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	return model.CanonicalEvent{
		SourceSystem:  model.SourceMuleSoft,
		EventCategory: model.CategoryMuleSoftError,
		Timestamp:     ts,
		EventID:       resolveEventID(payload),
		Endpoint:      resolveEndpoint(payload, mulesoftEndpointFields),
		IsError:       true,
		StatusCode:    resolveStatusCode(payload),
		RawPayload:    payload,
	}, nil
}

// mulesoftUptimeAdapter normalizes MuleSoft availability heartbeats. They
// carry neither a latency nor an error signal and no per-request endpoint;
// they contribute to request volume only.
type mulesoftUptimeAdapter struct{}

func (mulesoftUptimeAdapter) Normalize(payload map[string]any, ingestTime time.Time) (model.CanonicalEvent, error) {
	if len(payload) == 0 {
		return model.CanonicalEvent{}, &ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	ts, err := resolveTimestamp(payload, ingestTime)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	return model.CanonicalEvent{
		SourceSystem:  model.SourceMuleSoft,
		EventCategory: model.CategoryMuleSoftUptime,
		Timestamp:     ts,
		EventID:       resolveEventID(payload),
		Endpoint:      model.EndpointUnknown,
		IsError:       false,
		RawPayload:    payload,
	}, nil
}
