// Package kafka consumes raw source payloads from a Kafka topic and pushes
// them through the same ingest path as the HTTP routes.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/ingest"
)

// Receiver reads one JSON event per message. The configured source selects
// the ingest route ("salesforce" | "mulesoft" | "universal").
type Receiver struct {
	brokers []string
	topic   string
	group   string
	source  string

	maxBytes int
	ing      *ingest.Ingestor
}

func New(rc config.ReceiverCfg, ing *ingest.Ingestor) *Receiver {
	maxBytes := rc.ExtraInt("max_bytes", 10*1024*1024)
	brokers := rc.Brokers
	if len(brokers) == 0 && strings.TrimSpace(rc.Endpoint) != "" {
		brokers = []string{strings.TrimSpace(rc.Endpoint)}
	}
	return &Receiver{
		brokers:  brokers,
		topic:    rc.Topic,
		group:    rc.Group,
		source:   rc.Source,
		maxBytes: maxBytes,
		ing:      ing,
	}
}

func (r *Receiver) Start(ctx context.Context) error {
	if len(r.brokers) == 0 || strings.TrimSpace(r.topic) == "" {
		return errors.New("kafka receiver: missing brokers or topic")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  r.brokers,
		GroupID:  r.groupOrDefault(),
		Topic:    r.topic,
		MaxBytes: r.maxBytes,
	})
	defer func() { _ = reader.Close() }()

	log.Printf("[kafka/%s] consuming topic=%s group=%s brokers=%v", r.source, r.topic, r.groupOrDefault(), r.brokers)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			// graceful exit on context cancellation
			if err == context.Canceled || err == context.DeadlineExceeded {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Printf("[kafka/%s] read error: %v", r.source, err)
				time.Sleep(500 * time.Millisecond)
				continue
			}
		}

		var payload map[string]any
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			log.Printf("[kafka/%s] skipping non-JSON message at offset %d: %v", r.source, msg.Offset, err)
			continue
		}

		if _, err := r.ing.IngestRoute(ctx, r.source, payload); err != nil {
			// Validation failures are the producer's problem; log and move on
			// rather than stalling the partition.
			log.Printf("[kafka/%s] ingest failed at offset %d: %v", r.source, msg.Offset, err)
		}
	}
}

func (r *Receiver) groupOrDefault() string {
	g := strings.TrimSpace(r.group)
	if g == "" {
		return "apitel-ingest"
	}
	return g
}
