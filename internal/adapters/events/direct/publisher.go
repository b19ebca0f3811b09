// Package direct provides a direct event publisher that writes to storage.
package direct

import (
	"context"
	"fmt"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
)

// Publisher implements ports.EventPublisher by writing directly to storage.
// This is the default implementation for single-instance deployments.
type Publisher struct {
	store ports.RewriteStore
}

// NewPublisher creates a new direct event publisher.
func NewPublisher(store ports.StorageProvider) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("storage provider required")
	}

	return &Publisher{
		store: store,
	}, nil
}

// Publish writes a rewrite event synchronously to storage.
func (p *Publisher) Publish(ctx context.Context, event *domain.RewriteEvent) error {
	if event == nil {
		return nil
	}
	return p.store.SaveRewrite(ctx, event)
}

// Close is a no-op; the store is owned and closed by the gateway.
func (p *Publisher) Close() error {
	return nil
}
