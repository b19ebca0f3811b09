package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
	"github.com/tjfontaine/frenet-gateway/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*domain.RewriteEvent{
		{ID: "a", Phase: domain.PhaseWebhook, OrderID: 10, FromMethodID: "frenet", ToMethodID: "FRENET_PAC_04510", CreatedAt: base},
		{ID: "b", Phase: domain.PhaseREST, OrderID: 10, FromMethodID: "frenet", ToMethodID: "FRENET_PAC_04510", CreatedAt: base.Add(time.Minute)},
		{ID: "c", Phase: domain.PhaseWebhook, OrderID: 20, FromMethodID: "frenet", ToMethodID: "FRENET_SEDEX_04014", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := store.SaveRewrite(context.Background(), ev); err != nil {
			t.Fatalf("SaveRewrite() error = %v", err)
		}
	}
	return store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleStats(t *testing.T) {
	srv := NewServer(&config.Config{}, seededStore(t), time.Now().Add(-time.Minute), testLogger())

	rec := get(t, srv, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.GoVersion == "" || stats.NumGoroutine == 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Rewrites == nil || *stats.Rewrites != 3 {
		t.Errorf("rewrites = %v, want 3", stats.Rewrites)
	}
}

func TestHandleStats_NoStore(t *testing.T) {
	srv := NewServer(&config.Config{}, nil, time.Time{}, testLogger())

	rec := get(t, srv, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"rewrites"`) {
		t.Errorf("expected no rewrite count without storage, got %s", rec.Body)
	}
}

func TestHandleListRewrites(t *testing.T) {
	srv := NewServer(&config.Config{}, seededStore(t), time.Now(), testLogger())

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantIDs  []string
	}{
		{"all", "", http.StatusOK, []string{"c", "b", "a"}},
		{"by order", "?order_id=10", http.StatusOK, []string{"b", "a"}},
		{"by phase", "?phase=webhook", http.StatusOK, []string{"c", "a"}},
		{"limit", "?limit=1", http.StatusOK, []string{"c"}},
		{"offset", "?limit=1&offset=2", http.StatusOK, []string{"a"}},
		{"since", "?since=2026-03-01T12:01:00Z", http.StatusOK, []string{"c", "b"}},
		{"bad order", "?order_id=abc", http.StatusBadRequest, nil},
		{"bad phase", "?phase=checkout", http.StatusBadRequest, nil},
		{"bad limit", "?limit=-1", http.StatusBadRequest, nil},
		{"bad since", "?since=yesterday", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, "/api/rewrites"+tt.query)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp RewriteListResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Total != 3 {
				t.Errorf("total = %d, want 3", resp.Total)
			}
			if len(resp.Data) != len(tt.wantIDs) {
				t.Fatalf("got %d events, want %d", len(resp.Data), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resp.Data[i].ID != id {
					t.Errorf("event %d = %s, want %s", i, resp.Data[i].ID, id)
				}
			}
		})
	}
}

func TestHandleListRewrites_LimitCapped(t *testing.T) {
	opts, err := parseListOptions(httptest.NewRequest(http.MethodGet, "/api/rewrites?limit=5000", nil))
	if err != nil {
		t.Fatalf("parseListOptions() error = %v", err)
	}
	if opts.Limit != maxListLimit {
		t.Errorf("limit = %d, want %d", opts.Limit, maxListLimit)
	}
}

type failingStore struct{ ports.RewriteStore }

func (failingStore) ListRewrites(context.Context, ports.RewriteListOptions) ([]*domain.RewriteEvent, error) {
	return nil, errors.New("disk on fire")
}

func TestHandleListRewrites_Errors(t *testing.T) {
	if rec := get(t, NewServer(&config.Config{}, nil, time.Now(), testLogger()), "/api/rewrites"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no store status = %d, want 503", rec.Code)
	}

	srv := NewServer(&config.Config{}, failingStore{}, time.Now(), testLogger())
	if rec := get(t, srv, "/api/rewrites"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing store status = %d, want 500", rec.Code)
	}
}

func TestHandleOverview(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: "./data/gateway.db"}},
		Webhooks: []config.WebhookConfig{
			{Name: "tiny", Secret: "s3cret", Sink: config.SinkConfig{URL: "https://erp.example.com/hooks"}},
			{Name: "queue", Sink: config.SinkConfig{Type: "amqp", AMQP: config.AMQPConfig{URL: "amqp://guest:guest@mq/", Exchange: "woo.orders"}}},
		},
		REST: config.RESTConfig{Enabled: true, Upstream: "https://shop.example.com"},
		Pipeline: config.PipelineConfig{Stages: []config.PipelineStageConfig{
			{Name: "frenet-webhook", Kind: "frenet", Type: "webhook"},
		}},
		Admin: config.AdminConfig{APIKeys: []config.APIKeyConfig{{KeyHash: "abc"}}},
	}

	rec := get(t, NewServer(cfg, memory.New(), time.Now(), testLogger()), "/api/overview")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, secret := range []string{"s3cret", "guest:guest"} {
		if strings.Contains(body, secret) {
			t.Errorf("overview leaked %q: %s", secret, body)
		}
	}

	var resp OverviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Storage.Enabled || resp.Storage.Path != "./data/gateway.db" {
		t.Errorf("unexpected storage summary: %+v", resp.Storage)
	}
	if len(resp.Webhooks) != 2 {
		t.Fatalf("webhooks = %d, want 2", len(resp.Webhooks))
	}
	if w := resp.Webhooks[0]; w.Path != "/webhooks/tiny" || w.SinkType != "http" || !w.Verified {
		t.Errorf("unexpected webhook summary: %+v", w)
	}
	if w := resp.Webhooks[1]; w.SinkType != "amqp" || w.Target != "woo.orders" || w.Verified {
		t.Errorf("unexpected amqp summary: %+v", w)
	}
	if !resp.REST.Enabled || len(resp.Pipeline) != 1 || resp.Admin.KeyCount != 1 {
		t.Errorf("unexpected overview: %+v", resp)
	}
}
