package pipeline

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

const (
	KindFrenet  = "frenet"
	KindWebhook = "webhook"
)

// Deps carries the runtime collaborators stages may need.
type Deps struct {
	Events ports.EventPublisher
	Logger *slog.Logger
	// Transport is used by webhook stages; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// DefaultStages returns the configuration used when no stages are configured:
// the frenet rewrite on both phases.
func DefaultStages() []config.PipelineStageConfig {
	return []config.PipelineStageConfig{
		{Name: "frenet-webhook", Kind: KindFrenet, Type: string(ports.StageWebhook)},
		{Name: "frenet-rest", Kind: KindFrenet, Type: string(ports.StageREST)},
	}
}

// NewExecutorFromConfig creates a pipeline executor from app configuration.
// An empty stage list yields the default frenet stages.
func NewExecutorFromConfig(cfg config.PipelineConfig, deps Deps) (*Executor, error) {
	stageCfgs := cfg.Stages
	if len(stageCfgs) == 0 {
		stageCfgs = DefaultStages()
	}

	stages := make([]StageConfig, 0, len(stageCfgs))
	seen := make(map[string]bool, len(stageCfgs))

	for _, stageCfg := range stageCfgs {
		if stageCfg.Name == "" {
			return nil, fmt.Errorf("pipeline stage without name")
		}
		if seen[stageCfg.Name] {
			return nil, fmt.Errorf("duplicate pipeline stage %q", stageCfg.Name)
		}
		seen[stageCfg.Name] = true

		stageType := ports.StageType(stageCfg.Type)
		if stageType != ports.StageWebhook && stageType != ports.StageREST {
			return nil, fmt.Errorf("stage %s: invalid type %q (must be 'webhook' or 'rest')", stageCfg.Name, stageCfg.Type)
		}

		stage, err := newStageFromConfig(stageCfg, deps)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stageCfg.Name, err)
		}

		stages = append(stages, StageConfig{
			Name:  stageCfg.Name,
			Type:  stageType,
			Order: stageCfg.Order,
			Stage: stage,
		})
	}

	return NewExecutor(ExecutorConfig{Stages: stages}), nil
}

func newStageFromConfig(cfg config.PipelineStageConfig, deps Deps) (ports.Stage, error) {
	switch cfg.Kind {
	case "", KindFrenet:
		return NewFrenetStage(FrenetStageConfig{
			Name:   cfg.Name,
			Type:   ports.StageType(cfg.Type),
			Events: deps.Events,
			Logger: deps.Logger,
		}), nil
	case KindWebhook:
		// handled below
	default:
		return nil, fmt.Errorf("unknown kind %q (must be 'frenet' or 'webhook')", cfg.Kind)
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("url required for webhook stage")
	}

	timeout, err := config.ParseDuration(cfg.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	backoff, err := config.ParseDuration(cfg.Backoff, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}

	var onError ports.StageAction
	switch cfg.OnError {
	case "", "deny":
		onError = ports.ActionDeny
	case "allow":
		onError = ports.ActionAllow
	default:
		return nil, fmt.Errorf("invalid on_error %q (must be 'allow' or 'deny')", cfg.OnError)
	}

	return NewWebhookStage(WebhookStageConfig{
		Name:      cfg.Name,
		Type:      ports.StageType(cfg.Type),
		URL:       cfg.URL,
		Timeout:   timeout,
		OnError:   onError,
		Retries:   cfg.Retries,
		Backoff:   backoff,
		Headers:   cfg.Headers,
		Transport: deps.Transport,
		Logger:    deps.Logger,
	}), nil
}
