package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Root config object
type Config struct {
	Gateway   GatewayCfg             `yaml:"gateway"`
	Store     StoreCfg               `yaml:"store"`
	Ingest    IngestCfg              `yaml:"ingest"`
	Receivers map[string]ReceiverCfg `yaml:"receivers"`
}

type GatewayCfg struct {
	// Endpoint is the HTTP listen address for the ingest and query routes,
	// e.g. "0.0.0.0:8080".
	Endpoint string `yaml:"endpoint"`
}

type StoreCfg struct {
	// Type selects the log store backend: "memory" | "redis" | "postgres".
	Type string `yaml:"type"`

	// Propagation delay model (memory backend). First write to a previously
	// unseen category becomes visible after FirstWriteDelaySeconds; later
	// writes after SteadyDelaySeconds.
	FirstWriteDelaySeconds int `yaml:"first_write_delay_seconds,omitempty"`
	SteadyDelaySeconds     int `yaml:"steady_delay_seconds,omitempty"`

	Redis    RedisCfg    `yaml:"redis,omitempty"`
	Postgres PostgresCfg `yaml:"postgres,omitempty"`
}

type RedisCfg struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

type PostgresCfg struct {
	DSN string `yaml:"dsn"`
}

type IngestCfg struct {
	// DedupWindowSeconds enables eventId-based duplicate suppression inside
	// the given window. 0 disables dedup, matching the upstream sources which
	// enforce no idempotency key on re-delivery.
	DedupWindowSeconds int `yaml:"dedup_window_seconds,omitempty"`

	// Filter is an optional CEL expression over the canonical event;
	// non-matching events are dropped before the store write.
	Filter string `yaml:"filter,omitempty"`

	// AppendMaxRetries bounds the exponential-backoff retry of store appends.
	AppendMaxRetries int `yaml:"append_max_retries,omitempty"`
}

type ReceiverCfg struct {
	Name     string         `yaml:"-"`
	Type     string         `yaml:"type"`
	Endpoint string         `yaml:"endpoint,omitempty"`
	Brokers  []string       `yaml:"brokers,omitempty"`
	Topic    string         `yaml:"topic,omitempty"`
	Group    string         `yaml:"group,omitempty"`
	// Source picks the ingest route for messages from this receiver:
	// "salesforce" | "mulesoft" | "universal" (default).
	Source string         `yaml:"source,omitempty"`
	Extra  map[string]any `yaml:",inline"`
}

// Load reads YAML config into a Config struct and applies defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if cfg.Gateway.Endpoint == "" {
		cfg.Gateway.Endpoint = "0.0.0.0:8080"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	switch cfg.Store.Type {
	case "memory", "redis", "postgres":
	default:
		return nil, fmt.Errorf("unknown store type %q (want memory|redis|postgres)", cfg.Store.Type)
	}
	if cfg.Ingest.AppendMaxRetries <= 0 {
		cfg.Ingest.AppendMaxRetries = 5
	}

	// Normalize receivers: keys like "kafka/salesforce" carry type and name.
	for k, v := range cfg.Receivers {
		typ, name := splitKey(k)
		if v.Type == "" {
			v.Type = typ
		}
		if v.Name == "" {
			v.Name = name
		}
		if v.Source == "" {
			v.Source = "universal"
		}
		if v.Extra == nil {
			v.Extra = map[string]any{}
		}
		cfg.Receivers[k] = v
	}

	return &cfg, nil
}

// splitKey lets you write keys like "kafka/salesforce" in YAML.
// It splits into (type, name).
func splitKey(k string) (typ, name string) {
	if k == "" {
		return "", ""
	}
	parts := strings.SplitN(k, "/", 2)
	if len(parts) == 1 {
		return parts[0], parts[0]
	}
	return parts[0], parts[1]
}

// --- Helpers for reading typed extras ---

func (rc ReceiverCfg) ExtraString(key, def string) string {
	if rc.Extra == nil {
		return def
	}
	if v, ok := rc.Extra[key]; ok {
		if s, ok2 := v.(string); ok2 {
			return s
		}
	}
	return def
}

func (rc ReceiverCfg) ExtraBool(key string, def bool) bool {
	if rc.Extra == nil {
		return def
	}
	if v, ok := rc.Extra[key]; ok {
		if b, ok2 := v.(bool); ok2 {
			return b
		}
	}
	return def
}

func (rc ReceiverCfg) ExtraInt(key string, def int) int {
	if rc.Extra == nil {
		return def
	}
	switch v := rc.Extra[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
