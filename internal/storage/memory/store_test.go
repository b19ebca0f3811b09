package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
)

func TestStore_SaveAndList(t *testing.T) {
	store := New()
	ctx := context.Background()

	ev := &domain.RewriteEvent{
		ID:           "rw-1",
		Phase:        domain.PhaseWebhook,
		OrderID:      42,
		FromMethodID: "frenet",
		ToMethodID:   "FRENET_FMT_WS_1",
	}
	if err := store.SaveRewrite(ctx, ev); err != nil {
		t.Fatalf("SaveRewrite() error = %v", err)
	}

	// Mutating the caller's copy must not affect the stored event.
	ev.ToMethodID = "changed"

	got, err := store.ListRewrites(ctx, ports.RewriteListOptions{})
	if err != nil {
		t.Fatalf("ListRewrites() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ToMethodID != "FRENET_FMT_WS_1" {
		t.Errorf("ToMethodID = %q, want FRENET_FMT_WS_1", got[0].ToMethodID)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestStore_DuplicateAndMissingID(t *testing.T) {
	store := New()
	ctx := context.Background()

	ev := &domain.RewriteEvent{ID: "dup", Phase: domain.PhaseREST}
	_ = store.SaveRewrite(ctx, ev)
	_ = store.SaveRewrite(ctx, ev)

	if n, _ := store.CountRewrites(ctx); n != 1 {
		t.Errorf("CountRewrites() = %d, want 1", n)
	}
	if err := store.SaveRewrite(ctx, &domain.RewriteEvent{}); err == nil {
		t.Error("expected error for event without id")
	}
}

func TestStore_Filters(t *testing.T) {
	store := New()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, row := range []struct {
		id    string
		order int64
		phase domain.Phase
	}{
		{"a", 100, domain.PhaseWebhook},
		{"b", 100, domain.PhaseREST},
		{"c", 200, domain.PhaseWebhook},
		{"d", 300, domain.PhaseREST},
	} {
		_ = store.SaveRewrite(ctx, &domain.RewriteEvent{
			ID:        row.id,
			OrderID:   row.order,
			Phase:     row.phase,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	tests := []struct {
		name string
		opts ports.RewriteListOptions
		want []string
	}{
		{"all newest first", ports.RewriteListOptions{}, []string{"d", "c", "b", "a"}},
		{"by order", ports.RewriteListOptions{OrderID: 100}, []string{"b", "a"}},
		{"by phase", ports.RewriteListOptions{Phase: domain.PhaseREST}, []string{"d", "b"}},
		{"since", ports.RewriteListOptions{Since: base.Add(2 * time.Minute)}, []string{"d", "c"}},
		{"limit and offset", ports.RewriteListOptions{Limit: 1, Offset: 1}, []string{"c"}},
		{"offset past end", ports.RewriteListOptions{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListRewrites(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListRewrites() error = %v", err)
			}
			ids := make([]string, len(got))
			for i, ev := range got {
				ids[i] = ev.ID
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestStore_Concurrent(t *testing.T) {
	store := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.SaveRewrite(ctx, &domain.RewriteEvent{ID: fmt.Sprintf("rw-%d", i)})
			_, _ = store.ListRewrites(ctx, ports.RewriteListOptions{})
		}(i)
	}
	wg.Wait()

	if n, _ := store.CountRewrites(ctx); n != 50 {
		t.Errorf("CountRewrites() = %d, want 50", n)
	}
}
