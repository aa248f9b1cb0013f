package adapter

import (
	"strings"
	"time"

	"github.com/platformbuilds/apitel/internal/model"
)

// genericAdapter is the catch-all for payloads no specific category claims.
// It extracts whatever common fields are present and flags errors from the
// status code alone.
type genericAdapter struct{}

func (genericAdapter) Normalize(payload map[string]any, ingestTime time.Time) (model.CanonicalEvent, error) {
	if len(payload) == 0 {
		return model.CanonicalEvent{}, &ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	ts, err := resolveTimestamp(payload, ingestTime)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	source := model.SourceMuleSoft
	if strings.Contains(strings.ToLower(stringField(payload, "sourceSystem")), "salesforce") {
		source = model.SourceSalesforce
	}

	status := resolveStatusCode(payload)

	return model.CanonicalEvent{
		SourceSystem:   source,
		EventCategory:  model.CategoryGeneric,
		Timestamp:      ts,
		EventID:        resolveEventID(payload),
		Endpoint:       resolveEndpoint(payload, mulesoftEndpointFields),
		ResponseTimeMs: resolveResponseTime(payload, mulesoftResponseTimeFields),
		IsError:        status != nil && *status >= 400,
		StatusCode:     status,
		RawPayload:     payload,
	}, nil
}
