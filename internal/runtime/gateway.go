// Package runtime provides the core Gateway struct and lifecycle management
// for the frenet gateway: config loading, storage, routing and hot reload.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/frenet-gateway/internal/adapters/events/direct"
	"github.com/tjfontaine/frenet-gateway/internal/api/controlplane"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pipeline"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/auth"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
	"github.com/tjfontaine/frenet-gateway/internal/restproxy"
	"github.com/tjfontaine/frenet-gateway/internal/server"
	"github.com/tjfontaine/frenet-gateway/internal/storage"
	"github.com/tjfontaine/frenet-gateway/internal/webhook"
	"github.com/tjfontaine/frenet-gateway/internal/webhook/sink"
)

// Gateway is the main entry point for running the frenet gateway.
// It manages configuration, storage, the webhook relay, the REST proxy and
// the HTTP server lifecycle. Gateway can be embedded in larger applications
// or run standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config      ports.ConfigProvider
	storage     ports.StorageProvider
	events      ports.EventPublisher
	sinkFactory SinkFactory
	logger      *slog.Logger

	// Internal state
	routes    atomic.Pointer[routes]
	server    *server.Server
	startTime time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// routes is one generation of the request handlers built from a config.
// Its sinks are closed once the generation is retired and the last request
// using it has finished.
type routes struct {
	handler http.Handler
	sinks   []ports.Sink
	onIdle  func()

	mu      sync.Mutex
	active  int
	retired bool
}

// acquire marks a request as using rt. It fails once rt has been retired.
func (rt *routes) acquire() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.retired {
		return false
	}
	rt.active++
	return true
}

func (rt *routes) release() {
	rt.mu.Lock()
	rt.active--
	idle := rt.retired && rt.active == 0
	rt.mu.Unlock()
	if idle {
		rt.onIdle()
	}
}

// retire stops new requests from using rt.
func (rt *routes) retire() {
	rt.mu.Lock()
	if rt.retired {
		rt.mu.Unlock()
		return
	}
	rt.retired = true
	idle := rt.active == 0
	rt.mu.Unlock()
	if idle {
		rt.onIdle()
	}
}

// New creates a new Gateway with the given options.
// Storage defaults to the store named in the configuration, opened on Start.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger:      slog.Default(),
		sinkFactory: sink.New,
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfig)")
	}

	return gw, nil
}

// Start loads the configuration, builds the routes and starts serving.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.server != nil {
		return fmt.Errorf("gateway already started")
	}

	g.ctx, g.cancel = context.WithCancel(ctx)
	g.startTime = time.Now()

	cfg, err := g.config.Load(g.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := g.initStorage(cfg); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	rt, err := g.buildRoutes(cfg)
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}
	g.routes.Store(rt)

	timeout, err := config.ParseDuration(cfg.Server.RequestTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	g.server = server.New(cfg.Server.Port, g.logger, timeout)
	g.server.Router.Handle("/*", http.HandlerFunc(g.serveCurrent))

	go func() {
		if err := g.server.Start(); err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	go g.watchConfig()

	g.logger.Info("gateway started",
		slog.Int("port", cfg.Server.Port),
		slog.Int("webhooks", len(cfg.Webhooks)),
		slog.Bool("rest_proxy", cfg.REST.Enabled),
		slog.Bool("storage", g.storage != nil))

	return nil
}

// Handler returns the gateway's full HTTP handler, middleware included.
// It is nil until Start succeeds.
func (g *Gateway) Handler() http.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server == nil {
		return nil
	}
	return g.server.Router
}

// Shutdown gracefully stops the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	var errs []error

	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if rt := g.routes.Swap(nil); rt != nil {
		rt.retire()
	}

	if g.events != nil {
		if err := g.events.Close(); err != nil {
			g.logger.Error("failed to close events", slog.String("error", err.Error()))
		}
	}

	if g.storage != nil {
		if err := g.storage.Close(); err != nil {
			g.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if g.config != nil {
		if err := g.config.Close(); err != nil {
			g.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}

// initStorage opens the configured store unless one was injected, and
// defaults the event publisher to writing straight into it.
func (g *Gateway) initStorage(cfg *config.Config) error {
	if g.storage == nil {
		store, err := storage.Open(cfg.Storage)
		if err != nil {
			return err
		}
		if store == nil {
			g.logger.Info("rewrite storage disabled")
		} else {
			g.storage = store
		}
	}

	if g.events == nil && g.storage != nil {
		publisher, err := direct.NewPublisher(g.storage)
		if err != nil {
			return fmt.Errorf("create default event publisher: %w", err)
		}
		g.events = publisher
	}
	return nil
}

func (g *Gateway) serveCurrent(w http.ResponseWriter, r *http.Request) {
	rt := g.acquireRoutes()
	if rt == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}
	defer rt.release()
	rt.handler.ServeHTTP(w, r)
}

// acquireRoutes returns the current routes, acquired for one request.
func (g *Gateway) acquireRoutes() *routes {
	for {
		rt := g.routes.Load()
		if rt == nil {
			return nil
		}
		// A reload may retire rt between Load and acquire.
		if rt.acquire() {
			return rt
		}
	}
}

// watchConfig watches for config changes and reloads.
func (g *Gateway) watchConfig() {
	onChange := func(newCfg *config.Config) {
		g.logger.Info("config changed, reloading")
		if err := g.reload(newCfg); err != nil {
			g.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := g.config.Watch(g.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload swaps in routes built from cfg. Sinks of the previous routes are
// closed after their in-flight requests finish. Server port, timeouts and
// storage are fixed at Start; changing them needs a restart.
func (g *Gateway) reload(cfg *config.Config) error {
	rt, err := g.buildRoutes(cfg)
	if err != nil {
		return fmt.Errorf("rebuild routes: %w", err)
	}

	if old := g.routes.Swap(rt); old != nil {
		old.retire()
	}

	g.logger.Info("reload complete",
		slog.Int("webhooks", len(cfg.Webhooks)),
		slog.Bool("rest_proxy", cfg.REST.Enabled))
	return nil
}

// buildRoutes wires the pipeline, webhook relay, REST proxy and control
// plane for cfg.
func (g *Gateway) buildRoutes(cfg *config.Config) (*routes, error) {
	exec, err := pipeline.NewExecutorFromConfig(cfg.Pipeline, pipeline.Deps{
		Events: g.events,
		Logger: g.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	r := chi.NewRouter()
	rt := &routes{handler: r}
	rt.onIdle = func() { g.closeSinks(rt.sinks) }

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	subs := make([]*webhook.Subscriber, 0, len(cfg.Webhooks))
	for _, wh := range cfg.Webhooks {
		s, err := g.sinkFactory(wh.Sink, g.logger)
		if err != nil {
			g.closeSinks(rt.sinks)
			return nil, fmt.Errorf("webhook %s: create sink: %w", wh.Name, err)
		}
		rt.sinks = append(rt.sinks, s)

		outbound := wh.Sink.Secret
		if outbound == "" {
			outbound = wh.Secret
		}
		subs = append(subs, &webhook.Subscriber{
			Name:           wh.Name,
			Secret:         wh.Secret,
			OutboundSecret: outbound,
			Sink:           s,
		})
		g.logger.Info("registered webhook relay",
			slog.String("name", wh.Name),
			slog.String("path", "/webhooks/"+wh.Name))
	}
	webhook.NewHandler(exec, g.logger, subs...).Register(r)

	if cfg.REST.Enabled {
		timeout, err := config.ParseDuration(cfg.REST.Timeout, 30*time.Second)
		if err != nil {
			g.closeSinks(rt.sinks)
			return nil, err
		}
		proxy, err := restproxy.New(restproxy.Config{
			Upstream:     cfg.REST.Upstream,
			Timeout:      timeout,
			BlockPrivate: cfg.REST.BlockPrivate,
		}, exec, g.logger)
		if err != nil {
			g.closeSinks(rt.sinks)
			return nil, fmt.Errorf("create rest proxy: %w", err)
		}
		proxy.Register(r)
		g.logger.Info("registered rest proxy", slog.String("upstream", cfg.REST.Upstream))
	}

	authenticator := auth.NewAuthenticator(cfg.Admin.APIKeys)
	if !authenticator.Enabled() {
		g.logger.Warn("no admin api keys configured, control plane is unauthenticated")
	}
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(server.AuthMiddleware(authenticator))
		ar.Mount("/", controlplane.NewServer(cfg, g.storage, g.startTime, g.logger))
	})

	return rt, nil
}

func (g *Gateway) closeSinks(sinks []ports.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			g.logger.Warn("failed to close sink", slog.String("error", err.Error()))
		}
	}
}
