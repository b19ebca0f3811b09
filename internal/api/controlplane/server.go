// Package controlplane serves the read-only admin API: process stats, a
// configuration overview and the rewrite audit trail.
package controlplane

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
	"github.com/tjfontaine/frenet-gateway/internal/server"
)

const maxListLimit = 200

type Server struct {
	router    *chi.Mux
	startTime time.Time
	cfg       *config.Config
	store     ports.RewriteStore
	logger    *slog.Logger
}

// NewServer builds the admin API. store may be nil when storage is disabled.
func NewServer(cfg *config.Config, store ports.RewriteStore, startTime time.Time, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if startTime.IsZero() {
		startTime = time.Now()
	}

	s := &Server{
		router:    chi.NewRouter(),
		startTime: startTime,
		cfg:       cfg,
		store:     store,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/overview", s.handleOverview)
	s.router.Get("/api/rewrites", s.handleListRewrites)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
	Rewrites     *int64      `json:"rewrites,omitempty"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	}

	if s.store != nil {
		n, err := s.store.CountRewrites(r.Context())
		if err != nil {
			s.logger.Error("failed to count rewrites",
				slog.String("error", err.Error()),
				slog.String("request_id", server.GetRequestID(r.Context())))
			server.AddError(r.Context(), err)
		} else {
			stats.Rewrites = &n
		}
	}

	writeJSON(w, stats)
}

type OverviewResponse struct {
	Storage  StorageSummary   `json:"storage"`
	Webhooks []WebhookSummary `json:"webhooks"`
	REST     RESTSummary      `json:"rest"`
	Pipeline []StageSummary   `json:"pipeline"`
	Admin    AdminSummary     `json:"admin"`
}

type StorageSummary struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
	Driver  string `json:"driver,omitempty"`
}

type WebhookSummary struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SinkType  string `json:"sink_type"`
	Target    string `json:"target"`
	Verified  bool   `json:"verified"`
	Resigning bool   `json:"resigning"`
}

type RESTSummary struct {
	Enabled  bool   `json:"enabled"`
	Upstream string `json:"upstream,omitempty"`
}

type StageSummary struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Order int    `json:"order"`
	URL   string `json:"url,omitempty"`
}

type AdminSummary struct {
	KeyCount int `json:"key_count"`
}

// handleOverview summarizes the running configuration. Secrets and DSNs are
// never echoed.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		http.Error(w, "configuration not loaded", http.StatusServiceUnavailable)
		return
	}

	resp := OverviewResponse{
		Storage: StorageSummary{
			Enabled: s.store != nil,
			Type:    s.cfg.Storage.Type,
		},
		REST: RESTSummary{
			Enabled:  s.cfg.REST.Enabled,
			Upstream: s.cfg.REST.Upstream,
		},
		Webhooks: make([]WebhookSummary, 0, len(s.cfg.Webhooks)),
		Pipeline: make([]StageSummary, 0, len(s.cfg.Pipeline.Stages)),
		Admin:    AdminSummary{KeyCount: len(s.cfg.Admin.APIKeys)},
	}

	switch s.cfg.Storage.Type {
	case "", "sqlite":
		resp.Storage.Path = s.cfg.Storage.SQLite.Path
	case "database":
		resp.Storage.Driver = s.cfg.Storage.Database.Driver
	}

	for _, wh := range s.cfg.Webhooks {
		sum := WebhookSummary{
			Name:      wh.Name,
			Path:      "/webhooks/" + wh.Name,
			SinkType:  wh.Sink.Type,
			Verified:  wh.Secret != "",
			Resigning: wh.Sink.Secret != "" || wh.Secret != "",
		}
		if sum.SinkType == "" {
			sum.SinkType = "http"
		}
		if sum.SinkType == "amqp" {
			sum.Target = wh.Sink.AMQP.Exchange
		} else {
			sum.Target = wh.Sink.URL
		}
		resp.Webhooks = append(resp.Webhooks, sum)
	}

	for _, st := range s.cfg.Pipeline.Stages {
		resp.Pipeline = append(resp.Pipeline, StageSummary{
			Name:  st.Name,
			Kind:  st.Kind,
			Type:  st.Type,
			Order: st.Order,
			URL:   st.URL,
		})
	}

	writeJSON(w, resp)
}

type RewriteListResponse struct {
	Data   []*domain.RewriteEvent `json:"data"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

func (s *Server) handleListRewrites(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "rewrite storage not configured", http.StatusServiceUnavailable)
		return
	}

	opts, err := parseListOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.store.ListRewrites(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to list rewrites",
			slog.String("error", err.Error()),
			slog.String("request_id", server.GetRequestID(r.Context())))
		server.AddError(r.Context(), err)
		http.Error(w, "failed to list rewrites", http.StatusInternalServerError)
		return
	}

	total, err := s.store.CountRewrites(r.Context())
	if err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "failed to count rewrites", http.StatusInternalServerError)
		return
	}

	writeJSON(w, RewriteListResponse{
		Data:   events,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

type queryError string

func (e queryError) Error() string { return string(e) }

func parseListOptions(r *http.Request) (ports.RewriteListOptions, error) {
	q := r.URL.Query()
	opts := ports.RewriteListOptions{Limit: ports.DefaultListLimit}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, queryError("invalid limit")
		}
		opts.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, queryError("invalid offset")
		}
		opts.Offset = n
	}
	if v := q.Get("order_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return opts, queryError("invalid order_id")
		}
		opts.OrderID = n
	}
	if v := q.Get("phase"); v != "" {
		switch domain.Phase(v) {
		case domain.PhaseWebhook, domain.PhaseREST:
			opts.Phase = domain.Phase(v)
		default:
			return opts, queryError("invalid phase")
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, queryError("invalid since, want RFC 3339")
		}
		opts.Since = t
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
