package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/frenet-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/frenet-gateway/internal/adapters/config/static"
	"github.com/tjfontaine/frenet-gateway/internal/adapters/events/direct"
	"github.com/tjfontaine/frenet-gateway/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
	"github.com/tjfontaine/frenet-gateway/internal/storage/memory"
	"github.com/tjfontaine/frenet-gateway/internal/storage/sqldb"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// SinkFactory builds the sink of one relayed webhook.
type SinkFactory func(cfg config.SinkConfig, logger *slog.Logger) (ports.Sink, error)

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		provider, err := file.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration, for embedding and tests.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		provider, err := static.NewProvider(cfg)
		if err != nil {
			return fmt.Errorf("create static config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(g *Gateway) error {
		g.config = provider
		return nil
	}
}

// WithSQLite stores the rewrite audit trail in a SQLite file.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqlite.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.storage = store
		return nil
	}
}

// WithPostgres stores the rewrite audit trail in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(g *Gateway) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		g.storage = store
		return nil
	}
}

// WithMemoryStorage keeps the audit trail in memory until the process exits.
func WithMemoryStorage() Option {
	return func(g *Gateway) error {
		g.storage = memory.New()
		return nil
	}
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(g *Gateway) error {
		g.storage = provider
		return nil
	}
}

// WithDirectEvents writes rewrite events synchronously to storage (default).
func WithDirectEvents() Option {
	return func(g *Gateway) error {
		if g.storage == nil {
			return fmt.Errorf("storage provider must be set before event publisher")
		}
		publisher, err := direct.NewPublisher(g.storage)
		if err != nil {
			return fmt.Errorf("create direct event publisher: %w", err)
		}
		g.events = publisher
		return nil
	}
}

// WithEventPublisher sets a custom event publisher.
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(g *Gateway) error {
		g.events = publisher
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithSinkFactory replaces the factory building webhook sinks.
func WithSinkFactory(factory SinkFactory) Option {
	return func(g *Gateway) error {
		g.sinkFactory = factory
		return nil
	}
}
