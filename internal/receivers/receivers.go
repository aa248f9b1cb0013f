// Package receivers builds the configured broker receivers.
package receivers

import (
	"context"
	"fmt"

	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/ingest"
	"github.com/platformbuilds/apitel/internal/receivers/kafka"
	"github.com/platformbuilds/apitel/internal/receivers/pulsar"
)

// Receiver runs until ctx is canceled, feeding messages into the ingest path.
type Receiver interface {
	Start(ctx context.Context) error
}

// Build constructs one receiver per config entry, keyed as configured.
func Build(cfg *config.Config, ing *ingest.Ingestor) (map[string]Receiver, error) {
	rx := make(map[string]Receiver, len(cfg.Receivers))
	for key, rc := range cfg.Receivers {
		switch rc.Type {
		case "kafka":
			rx[key] = kafka.New(rc, ing)
		case "pulsar":
			rx[key] = pulsar.New(rc, ing)
		default:
			return nil, fmt.Errorf("unknown receiver type %q (key=%s)", rc.Type, key)
		}
	}
	return rx, nil
}
