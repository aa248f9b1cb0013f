// Package ingest is the write path shared by the HTTP gateway and the broker
// receivers: classify → adapt → filter → dedup → append with bounded retry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platformbuilds/apitel/internal/adapter"
	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/filter"
	"github.com/platformbuilds/apitel/internal/logstore"
	"github.com/platformbuilds/apitel/internal/model"
)

// Ack status values.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusFiltered  = "filtered"
)

type Ingestor struct {
	store      logstore.Store
	flt        *filter.Filter
	dedup      *dedupWindow
	maxRetries uint64
	metrics    *Metrics

	// backoff seed, shortened in tests
	initialBackoff time.Duration
}

func New(store logstore.Store, cfg config.IngestCfg, reg prometheus.Registerer) *Ingestor {
	var dd *dedupWindow
	if cfg.DedupWindowSeconds > 0 {
		dd = newDedupWindow(time.Duration(cfg.DedupWindowSeconds) * time.Second)
	}
	return &Ingestor{
		store:          store,
		flt:            filter.New(cfg.Filter),
		dedup:          dd,
		maxRetries:     uint64(cfg.AppendMaxRetries),
		metrics:        NewMetrics(reg),
		initialBackoff: 200 * time.Millisecond,
	}
}

// IngestSalesforce handles the legacy Salesforce route: every payload lands in
// the Salesforce category.
func (i *Ingestor) IngestSalesforce(ctx context.Context, payload map[string]any) (model.Ack, error) {
	return i.ingest(ctx, model.CategorySalesforce, payload)
}

// IngestMuleSoft handles the dedicated MuleSoft route. The payload's MuleSoft
// origin is pinned, then the category is classified from field presence.
func (i *Ingestor) IngestMuleSoft(ctx context.Context, payload map[string]any) (model.Ack, error) {
	if len(payload) == 0 {
		return model.Ack{}, &adapter.ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	if _, ok := payload["sourceSystem"]; !ok {
		payload["sourceSystem"] = string(model.SourceMuleSoft)
	}
	cat := adapter.Classify(payload)
	return i.ingest(ctx, cat, payload)
}

// IngestUniversal handles payloads from any source. An explicit eventCategory
// field wins; otherwise the category is classified from the payload's content.
func (i *Ingestor) IngestUniversal(ctx context.Context, payload map[string]any) (model.Ack, error) {
	if len(payload) == 0 {
		return model.Ack{}, &adapter.ValidationError{Field: "payload", Reason: "empty or not an object"}
	}
	if hint, ok := payload["eventCategory"].(string); ok {
		if cat, ok := adapter.CategoryFromHint(hint); ok {
			return i.ingest(ctx, cat, payload)
		}
		return model.Ack{}, &adapter.ValidationError{Field: "eventCategory", Reason: "unknown category: " + hint}
	}
	return i.ingest(ctx, adapter.Classify(payload), payload)
}

// IngestRoute dispatches by route name; broker receivers use this.
func (i *Ingestor) IngestRoute(ctx context.Context, route string, payload map[string]any) (model.Ack, error) {
	switch strings.ToLower(route) {
	case "salesforce":
		return i.IngestSalesforce(ctx, payload)
	case "mulesoft":
		return i.IngestMuleSoft(ctx, payload)
	default:
		return i.IngestUniversal(ctx, payload)
	}
}

func (i *Ingestor) ingest(ctx context.Context, cat model.EventCategory, payload map[string]any) (model.Ack, error) {
	ad, ok := adapter.ForCategory(cat)
	if !ok {
		return model.Ack{}, fmt.Errorf("no adapter for category %q", cat)
	}

	ev, err := ad.Normalize(payload, time.Now())
	if err != nil {
		var verr *adapter.ValidationError
		if errors.As(err, &verr) {
			i.metrics.validationFailures.WithLabelValues(verr.Field).Inc()
		}
		return model.Ack{}, err
	}

	if !i.flt.Keep(ev) {
		i.metrics.filtered.Inc()
		return model.Ack{EventID: ev.EventID, Timestamp: ev.Timestamp, Status: StatusFiltered}, nil
	}

	if i.dedup != nil && i.dedup.observe(ev.EventID, time.Now()) {
		i.metrics.duplicates.Inc()
		return model.Ack{EventID: ev.EventID, Timestamp: ev.Timestamp, Status: StatusDuplicate}, nil
	}

	if err := i.appendWithRetry(ctx, ev); err != nil {
		i.metrics.appendFailures.Inc()
		return model.Ack{}, fmt.Errorf("append: %w", err)
	}

	i.metrics.accepted.WithLabelValues(string(ev.SourceSystem), string(ev.EventCategory)).Inc()
	return model.Ack{EventID: ev.EventID, Timestamp: ev.Timestamp, Status: StatusAccepted}, nil
}

// appendWithRetry retries transient store failures with exponential backoff
// up to the configured attempt bound. Validation never reaches this point, so
// every error here is treated as retryable.
func (i *Ingestor) appendWithRetry(ctx context.Context, ev model.CanonicalEvent) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = i.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, i.maxRetries), ctx)

	op := func() error { return i.store.Append(ctx, ev) }
	notify := func(err error, next time.Duration) {
		i.metrics.appendRetries.Inc()
		log.Printf("[ingest] store append failed, retrying in %s: %v", next, err)
	}
	return backoff.RetryNotify(op, policy, notify)
}
