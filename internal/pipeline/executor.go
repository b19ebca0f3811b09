package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
)

const tracerName = "github.com/tjfontaine/frenet-gateway/internal/pipeline"

// Executor orchestrates pipeline stage execution.
// It maintains ordered lists of webhook and REST stages and executes them sequentially.
type Executor struct {
	webhookStages []ports.Stage
	restStages    []ports.Stage
}

// ExecutorConfig configures an executor from stage configurations.
type ExecutorConfig struct {
	Stages []StageConfig
}

// StageConfig is the configuration for a single stage.
type StageConfig struct {
	Name  string
	Type  ports.StageType
	Order int
	Stage ports.Stage
}

// NewExecutor creates an executor from configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	var webhookStages, restStages []StageConfig

	for _, s := range cfg.Stages {
		switch s.Type {
		case ports.StageWebhook:
			webhookStages = append(webhookStages, s)
		case ports.StageREST:
			restStages = append(restStages, s)
		}
	}

	sort.SliceStable(webhookStages, func(i, j int) bool {
		return webhookStages[i].Order < webhookStages[j].Order
	})
	sort.SliceStable(restStages, func(i, j int) bool {
		return restStages[i].Order < restStages[j].Order
	})

	e := &Executor{
		webhookStages: make([]ports.Stage, len(webhookStages)),
		restStages:    make([]ports.Stage, len(restStages)),
	}
	for i, s := range webhookStages {
		e.webhookStages[i] = s.Stage
	}
	for i, s := range restStages {
		e.restStages[i] = s.Stage
	}

	return e
}

// RunWebhook executes all webhook stages in order.
// Returns the (possibly mutated) payload or an error if denied.
func (e *Executor) RunWebhook(ctx context.Context, body []byte, meta map[string]any) ([]byte, error) {
	return e.run(ctx, ports.StageWebhook, e.webhookStages, body, meta)
}

// RunREST executes all REST stages in order on one order object.
func (e *Executor) RunREST(ctx context.Context, body []byte, meta map[string]any) ([]byte, error) {
	return e.run(ctx, ports.StageREST, e.restStages, body, meta)
}

func (e *Executor) run(ctx context.Context, phase ports.StageType, stages []ports.Stage, body []byte, meta map[string]any) ([]byte, error) {
	if len(stages) == 0 {
		return body, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline."+string(phase))
	defer span.End()
	span.SetAttributes(attribute.Int("pipeline.stages", len(stages)))

	current := body
	for _, stage := range stages {
		input := &ports.StageInput{
			Phase:    phase,
			Body:     current,
			Metadata: meta,
		}

		output, err := stage.Process(ctx, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("pipeline stage %s error: %w", stage.Name(), err)
		}

		switch output.Action {
		case ports.ActionDeny:
			reason := output.DenyReason
			if reason == "" {
				reason = "denied by pipeline stage " + stage.Name()
			}
			span.SetAttributes(attribute.String("pipeline.denied_by", stage.Name()))
			return nil, &DeniedError{
				StageName: stage.Name(),
				Reason:    reason,
			}
		case ports.ActionMutate:
			if len(output.Body) > 0 {
				current = output.Body
			}
		case ports.ActionAllow:
			// Continue with current body
		}
	}

	return current, nil
}

// HasWebhookStages returns true if there are any webhook stages configured.
func (e *Executor) HasWebhookStages() bool {
	return len(e.webhookStages) > 0
}

// HasRESTStages returns true if there are any REST stages configured.
func (e *Executor) HasRESTStages() bool {
	return len(e.restStages) > 0
}

// DeniedError is returned when a pipeline stage denies a payload.
type DeniedError struct {
	StageName string
	Reason    string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("pipeline denied by %s: %s", e.StageName, e.Reason)
}

// IsDenied returns true if the error is a pipeline denial.
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}

// Ensure Executor implements the interface.
var _ ports.PipelineExecutor = (*Executor)(nil)
