// Package pulsar consumes raw source payloads from an Apache Pulsar
// subscription and pushes them through the same ingest path as the HTTP
// routes.
package pulsar

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	ps "github.com/apache/pulsar-client-go/pulsar"

	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/ingest"
)

// Receiver reads one JSON event per message.
//
// Config mapping (config.ReceiverCfg):
//   - Endpoint OR Brokers[0]  => Pulsar serviceURL (e.g., pulsar://host:6650)
//   - Topic                   => topic to subscribe
//   - Group                   => subscription name
//   - Source                  => ingest route ("salesforce"|"mulesoft"|"universal")
//   - Extra:
//     subscription_type: string   // "exclusive"|"shared"|"failover"|"key_shared" (default "shared")
//     auth_token: string          // static token
//     auth_token_file: string     // read token from file (if auth_token empty)
//     message_chan_buffer: int    // consumer buffer (default 32)
type Receiver struct {
	serviceURL string
	topic      string
	subName    string
	source     string

	subType       ps.SubscriptionType
	authToken     string
	authTokenFile string
	msgChanBuffer int

	ing *ingest.Ingestor
}

func New(rc config.ReceiverCfg, ing *ingest.Ingestor) *Receiver {
	svc := strings.TrimSpace(rc.Endpoint)
	if svc == "" && len(rc.Brokers) > 0 {
		svc = strings.TrimSpace(rc.Brokers[0])
	}

	subType := ps.Shared
	switch strings.ToLower(strings.TrimSpace(rc.ExtraString("subscription_type", ""))) {
	case "exclusive":
		subType = ps.Exclusive
	case "failover":
		subType = ps.Failover
	case "key_shared", "keyshared", "key-shared":
		subType = ps.KeyShared
	}

	return &Receiver{
		serviceURL:    svc,
		topic:         rc.Topic,
		subName:       rc.Group, // mirrors Kafka group → Pulsar subscription name
		source:        rc.Source,
		subType:       subType,
		authToken:     rc.ExtraString("auth_token", ""),
		authTokenFile: rc.ExtraString("auth_token_file", ""),
		msgChanBuffer: rc.ExtraInt("message_chan_buffer", 32),
		ing:           ing,
	}
}

func (r *Receiver) Start(ctx context.Context) error {
	if r.serviceURL == "" || strings.TrimSpace(r.topic) == "" || strings.TrimSpace(r.subName) == "" {
		return errors.New("pulsar receiver: missing serviceURL, topic, or subscription name")
	}

	cliOpts := ps.ClientOptions{URL: r.serviceURL}
	if r.authToken != "" {
		cliOpts.Authentication = ps.NewAuthenticationToken(r.authToken)
	} else if r.authTokenFile != "" {
		cliOpts.Authentication = ps.NewAuthenticationTokenFromFile(r.authTokenFile)
	}

	client, err := ps.NewClient(cliOpts)
	if err != nil {
		return err
	}
	defer client.Close()

	consumer, err := client.Subscribe(ps.ConsumerOptions{
		Topic:            r.topic,
		SubscriptionName: r.subName,
		Type:             r.subType,
		MessageChannel:   make(chan ps.ConsumerMessage, r.msgChanBuffer),
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	log.Printf("[pulsar/%s] consuming topic=%s subscription=%s url=%s", r.source, r.topic, r.subName, r.serviceURL)

	msgCh := consumer.Chan()
	for {
		select {
		case <-ctx.Done():
			return nil

		case cm, ok := <-msgCh:
			if !ok {
				return nil
			}
			msg := cm.Message

			var payload map[string]any
			if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
				log.Printf("[pulsar/%s] skipping non-JSON message %s: %v", r.source, msg.ID(), err)
				consumer.Ack(msg)
				continue
			}

			if _, err := r.ing.IngestRoute(ctx, r.source, payload); err != nil {
				log.Printf("[pulsar/%s] ingest failed for %s: %v", r.source, msg.ID(), err)
			}
			// Ack regardless: validation failures never succeed on redelivery.
			consumer.Ack(msg)
		}
	}
}
