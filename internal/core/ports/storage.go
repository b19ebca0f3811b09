package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
)

// RewriteStore persists the audit trail of method id rewrites.
type RewriteStore interface {
	// SaveRewrite stores one rewrite event.
	SaveRewrite(ctx context.Context, ev *domain.RewriteEvent) error

	// ListRewrites lists rewrite events, newest first.
	ListRewrites(ctx context.Context, opts RewriteListOptions) ([]*domain.RewriteEvent, error)

	// CountRewrites returns the number of stored rewrite events.
	CountRewrites(ctx context.Context) (int64, error)

	// Close closes the storage connection
	Close() error
}

// RewriteListOptions filters ListRewrites.
type RewriteListOptions struct {
	OrderID int64
	Phase   domain.Phase
	Since   time.Time
	Limit   int
	Offset  int
}

// DefaultListLimit is used when RewriteListOptions.Limit is not positive.
const DefaultListLimit = 50
