package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
)

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(filepath.Join(t.TempDir(), "data", "gateway.db"))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	defer provider.Close()

	var _ ports.StorageProvider = provider

	ctx := context.Background()
	if err := provider.SaveRewrite(ctx, &domain.RewriteEvent{
		ID:           "rw-1",
		Phase:        domain.PhaseWebhook,
		FromMethodID: "frenet",
		ToMethodID:   "FRENET_PAC_04510",
	}); err != nil {
		t.Fatalf("SaveRewrite failed: %v", err)
	}
	if n, err := provider.CountRewrites(ctx); err != nil || n != 1 {
		t.Errorf("CountRewrites() = %d, %v, want 1", n, err)
	}
}

func TestNewProvider_InvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewProvider(filepath.Join(blocker, "gateway.db")); err == nil {
		t.Error("Expected error for invalid path")
	}
}

func TestProvider_Close(t *testing.T) {
	provider, err := NewProvider("file:providerclose?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	if err := provider.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
