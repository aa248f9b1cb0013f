package adapter

import (
	"time"

	"github.com/platformbuilds/apitel/internal/model"
)

// salesforceAdapter normalizes Salesforce platform events (Login, API_Usage,
// Data_Modification). Errors are flagged from the status code or the payload's
// own success boolean: a 4xx/5xx status is an error regardless of what the
// success field claims.
type salesforceAdapter struct{}

func (salesforceAdapter) Normalize(payload map[string]any, ingestTime time.Time) (model.CanonicalEvent, error) {
	if len(payload) == 0 {
		return model.CanonicalEvent{}, &ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	ts, err := resolveTimestamp(payload, ingestTime)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	status := resolveStatusCode(payload)

	isErr := false
	if status != nil && *status >= 400 {
		isErr = true
	}
	if v, ok := payload["success"].(bool); ok && !v {
		isErr = true
	}

	return model.CanonicalEvent{
		SourceSystem:   model.SourceSalesforce,
		EventCategory:  model.CategorySalesforce,
		Timestamp:      ts,
		EventID:        resolveEventID(payload),
		Endpoint:       resolveEndpoint(payload, salesforceEndpointFields),
		ResponseTimeMs: resolveResponseTime(payload, salesforceResponseTimeFields),
		IsError:        isErr,
		StatusCode:     status,
		RawPayload:     payload,
	}, nil
}
