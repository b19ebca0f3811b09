package ports

import (
	"context"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default), static.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// StorageProvider manages all storage operations.
// Implementations: SQLite (default), PostgreSQL, memory.
type StorageProvider interface {
	RewriteStore
}

// EventPublisher publishes rewrite events.
// Implementations: direct storage (default).
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.RewriteEvent) error
	Close() error
}

// Sink delivers a patched webhook payload to its subscriber.
// Implementations: HTTP (default), AMQP.
type Sink interface {
	Deliver(ctx context.Context, d *domain.WebhookDelivery) (*DeliveryResult, error)
	Close() error
}

// DeliveryResult describes a successful delivery.
type DeliveryResult struct {
	// StatusCode is the subscriber's HTTP status, zero for non-HTTP sinks.
	StatusCode int
}
