package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override file values.
// Nested keys are separated by a double underscore, e.g. FRENET_SERVER__PORT.
const EnvPrefix = "FRENET_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Storage   StorageConfig   `koanf:"storage"`
	Webhooks  []WebhookConfig `koanf:"webhooks"`
	REST      RESTConfig      `koanf:"rest"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Admin     AdminConfig     `koanf:"admin"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"` // Duration string like "30s"
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, postgres, database, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

// WebhookConfig describes one WooCommerce webhook relayed to a subscriber.
// The relay listens on /webhooks/{name}.
type WebhookConfig struct {
	Name   string     `koanf:"name"`
	Secret string     `koanf:"secret"` // WooCommerce webhook secret, empty disables verification
	Sink   SinkConfig `koanf:"sink"`
}

// SinkConfig describes where a patched webhook payload goes.
type SinkConfig struct {
	Type         string            `koanf:"type"` // http (default), amqp
	URL          string            `koanf:"url"`
	Secret       string            `koanf:"secret"`  // Re-signing secret, defaults to the webhook secret
	Timeout      string            `koanf:"timeout"` // Duration string like "10s"
	BlockPrivate bool              `koanf:"block_private"`
	Headers      map[string]string `koanf:"headers"`
	AMQP         AMQPConfig        `koanf:"amqp"`
}

type AMQPConfig struct {
	URL          string `koanf:"url"`
	Exchange     string `koanf:"exchange"`
	ExchangeType string `koanf:"exchange_type"` // topic (default), direct, fanout
	RoutingKey   string `koanf:"routing_key"`   // Defaults to the webhook topic
}

// RESTConfig configures the WooCommerce REST proxy mounted on /wp-json/.
type RESTConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Upstream     string `koanf:"upstream"` // Shop base URL, e.g. https://shop.example.com
	Timeout      string `koanf:"timeout"`
	BlockPrivate bool   `koanf:"block_private"`
}

type PipelineConfig struct {
	Stages []PipelineStageConfig `koanf:"stages"`
}

// PipelineStageConfig configures one pipeline stage.
type PipelineStageConfig struct {
	Name    string            `koanf:"name"`
	Kind    string            `koanf:"kind"` // frenet, webhook
	Type    string            `koanf:"type"` // webhook, rest
	Order   int               `koanf:"order"`
	URL     string            `koanf:"url"`
	Timeout string            `koanf:"timeout"`
	OnError string            `koanf:"on_error"` // allow, deny
	Retries int               `koanf:"retries"`
	Backoff string            `koanf:"backoff"` // First retry delay, doubled per retry
	Headers map[string]string `koanf:"headers"`
}

type AdminConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path (a missing file is fine) and applies
// FRENET_* environment overrides and defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets and connection strings
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)
	cfg.REST.Upstream = substituteEnvVars(cfg.REST.Upstream)
	for i := range cfg.Webhooks {
		w := &cfg.Webhooks[i]
		w.Secret = substituteEnvVars(w.Secret)
		w.Sink.URL = substituteEnvVars(w.Sink.URL)
		w.Sink.Secret = substituteEnvVars(w.Sink.Secret)
		w.Sink.AMQP.URL = substituteEnvVars(w.Sink.AMQP.URL)
		for h, v := range w.Sink.Headers {
			w.Sink.Headers[h] = substituteEnvVars(v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "30s",
		"logging.level":          "info",
		"logging.format":         "json",
		"telemetry.service_name": "frenet-gateway",
		"storage.type":           "sqlite",
		"storage.sqlite.path":    "./data/gateway.db",
		"rest.timeout":           "30s",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}
}

// Validate checks the parts of the configuration the gateway cannot start without.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Webhooks))
	for _, w := range c.Webhooks {
		if w.Name == "" {
			return fmt.Errorf("webhook without name")
		}
		if seen[w.Name] {
			return fmt.Errorf("duplicate webhook name %q", w.Name)
		}
		seen[w.Name] = true

		switch w.Sink.Type {
		case "", "http":
			if w.Sink.URL == "" {
				return fmt.Errorf("webhook %s: sink url required", w.Name)
			}
		case "amqp":
			if w.Sink.AMQP.URL == "" || w.Sink.AMQP.Exchange == "" {
				return fmt.Errorf("webhook %s: amqp sink requires url and exchange", w.Name)
			}
		default:
			return fmt.Errorf("webhook %s: unknown sink type %q", w.Name, w.Sink.Type)
		}
	}

	if c.REST.Enabled && c.REST.Upstream == "" {
		return fmt.Errorf("rest: upstream required when enabled")
	}

	for _, d := range []string{c.Server.RequestTimeout, c.REST.Timeout} {
		if _, err := ParseDuration(d, 0); err != nil {
			return err
		}
	}

	return nil
}

// ParseDuration parses s, returning def when s is empty.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
