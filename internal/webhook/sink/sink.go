// Package sink delivers patched webhook payloads to subscribers.
package sink

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

const defaultTimeout = 10 * time.Second

// New creates the sink described by cfg.
func New(cfg config.SinkConfig, logger *slog.Logger) (ports.Sink, error) {
	timeout, err := config.ParseDuration(cfg.Timeout, defaultTimeout)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", "http":
		return NewHTTPSink(HTTPConfig{
			URL:          cfg.URL,
			Timeout:      timeout,
			BlockPrivate: cfg.BlockPrivate,
			Headers:      cfg.Headers,
		}), nil
	case "amqp":
		s, err := DialAMQP(cfg.AMQP, timeout, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
