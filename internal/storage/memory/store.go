// Package memory keeps rewrite events in process memory. It is meant for tests
// and for deployments that only need the audit trail until restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
)

// Store is an in-memory implementation of ports.RewriteStore
type Store struct {
	mu     sync.RWMutex
	events []*domain.RewriteEvent
	ids    map[string]struct{}
}

var _ ports.RewriteStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		ids: make(map[string]struct{}),
	}
}

func (s *Store) SaveRewrite(ctx context.Context, ev *domain.RewriteEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("rewrite event without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[ev.ID]; exists {
		return nil
	}

	stored := *ev
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.ids[ev.ID] = struct{}{}
	s.events = append(s.events, &stored)
	return nil
}

func (s *Store) ListRewrites(ctx context.Context, opts ports.RewriteListOptions) ([]*domain.RewriteEvent, error) {
	s.mu.RLock()
	matched := make([]*domain.RewriteEvent, 0, len(s.events))
	for _, ev := range s.events {
		if opts.OrderID != 0 && ev.OrderID != opts.OrderID {
			continue
		}
		if opts.Phase != "" && ev.Phase != opts.Phase {
			continue
		}
		if !opts.Since.IsZero() && ev.CreatedAt.Before(opts.Since) {
			continue
		}
		cp := *ev
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}
	start := min(max(opts.Offset, 0), len(matched))
	end := min(start+limit, len(matched))

	return matched[start:end], nil
}

func (s *Store) CountRewrites(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

func (s *Store) Close() error {
	return nil
}
