package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/frenet"
)

// FrenetStage rewrites frenet shipping lines in-process.
type FrenetStage struct {
	name      string
	stageType ports.StageType
	webhook   *frenet.WebhookPatcher
	rest      *frenet.RESTPatcher
	events    ports.EventPublisher
	logger    *slog.Logger
}

// FrenetStageConfig configures a frenet stage.
type FrenetStageConfig struct {
	Name string
	Type ports.StageType
	// Events receives one RewriteEvent per substitution. Optional.
	Events ports.EventPublisher
	Logger *slog.Logger
}

// NewFrenetStage creates a frenet stage.
func NewFrenetStage(cfg FrenetStageConfig) *FrenetStage {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "frenet-" + string(cfg.Type)
	}
	return &FrenetStage{
		name:      name,
		stageType: cfg.Type,
		webhook:   frenet.NewWebhookPatcher(logger),
		rest:      frenet.NewRESTPatcher(),
		events:    cfg.Events,
		logger:    logger,
	}
}

func (s *FrenetStage) Name() string { return s.name }

func (s *FrenetStage) Type() ports.StageType { return s.stageType }

// Process patches in.Body. The webhook phase only touches order resources and
// logs each rewrite; the rest phase patches any body silently.
func (s *FrenetStage) Process(ctx context.Context, in *ports.StageInput) (*ports.StageOutput, error) {
	var (
		out     []byte
		subs    []frenet.Substitution
		orderID int64
	)

	switch in.Phase {
	case ports.StageWebhook:
		resource, _ := in.Metadata[ports.MetaResource].(string)
		orderID, _ = metaInt(in.Metadata, ports.MetaResourceID)
		webhookID, _ := metaInt(in.Metadata, ports.MetaWebhookID)
		out, subs = s.webhook.Apply(in.Body, resource, orderID, webhookID)
	case ports.StageREST:
		resp := frenet.NewResponse(in.Body)
		subs = s.rest.Apply(resp)
		out = resp.Data()
		orderID, _ = frenet.OrderID(out)
	default:
		return nil, fmt.Errorf("frenet stage: unknown phase %q", in.Phase)
	}

	if len(subs) == 0 {
		return &ports.StageOutput{Action: ports.ActionAllow}, nil
	}

	s.publish(ctx, in, orderID, subs)

	return &ports.StageOutput{Action: ports.ActionMutate, Body: out}, nil
}

func (s *FrenetStage) publish(ctx context.Context, in *ports.StageInput, orderID int64, subs []frenet.Substitution) {
	if s.events == nil {
		return
	}

	requestID, _ := in.Metadata[ports.MetaRequestID].(string)
	deliveryID, _ := in.Metadata[ports.MetaDeliveryID].(string)
	subscriber, _ := in.Metadata[ports.MetaSubscriber].(string)
	now := time.Now().UTC()

	for _, sub := range subs {
		event := &domain.RewriteEvent{
			ID:           eventID(deliveryID, subscriber, sub.Line),
			Phase:        domain.Phase(in.Phase),
			OrderID:      orderID,
			LineIndex:    sub.Line,
			InstanceID:   instanceID(sub.InstanceID),
			FromMethodID: sub.From,
			ToMethodID:   sub.To,
			RequestID:    requestID,
			DeliveryID:   deliveryID,
			Subscriber:   subscriber,
			CreatedAt:    now,
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish rewrite event",
				"error", err,
				"order_id", orderID,
				"phase", in.Phase,
			)
		}
	}
}

// instanceID renders a raw instance_id as text: strings are unquoted, other
// JSON values are kept as written.
func instanceID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// metaInt reads an integer metadata value. Values that went through JSON
// arrive as float64 or json.Number.
func metaInt(meta map[string]any, key string) (int64, bool) {
	switch v := meta[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

var _ ports.Stage = (*FrenetStage)(nil)

// eventID is stable for a redelivered webhook so the store can drop the
// duplicate. REST rewrites get a random id.
func eventID(deliveryID, subscriber string, line int) string {
	if deliveryID == "" {
		return uuid.NewString()
	}
	name := fmt.Sprintf("%s/%s/%d", subscriber, deliveryID, line)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
