package direct

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/storage/memory"
)

func TestNewPublisher(t *testing.T) {
	publisher, err := NewPublisher(memory.New())
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	if publisher == nil {
		t.Fatal("NewPublisher returned nil")
	}
}

func TestNewPublisher_NilStorage(t *testing.T) {
	_, err := NewPublisher(nil)
	if err == nil {
		t.Fatal("Expected error for nil storage")
	}
	if err.Error() != "storage provider required" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPublish(t *testing.T) {
	store := memory.New()
	publisher, _ := NewPublisher(store)
	ctx := context.Background()

	event := &domain.RewriteEvent{
		ID:           "rw-123",
		Phase:        domain.PhaseREST,
		OrderID:      1234,
		FromMethodID: "frenet",
		ToMethodID:   "FRENET_SEDEX_04014",
		CreatedAt:    time.Now(),
	}

	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := publisher.Publish(ctx, nil); err != nil {
		t.Fatalf("Publish(nil) failed: %v", err)
	}

	got, err := store.ListRewrites(ctx, ports.RewriteListOptions{OrderID: 1234})
	if err != nil {
		t.Fatalf("ListRewrites failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rw-123" {
		t.Errorf("unexpected stored events: %+v", got)
	}
}

func TestClose(t *testing.T) {
	publisher, _ := NewPublisher(memory.New())

	if err := publisher.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
