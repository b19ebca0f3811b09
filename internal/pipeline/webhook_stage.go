package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/frenet"
)

// HeaderStage names the stage on requests sent to an order hook.
const HeaderStage = "X-Frenet-Gateway-Stage"

// maxHookResponse bounds the body read from an order hook.
const maxHookResponse = 10 << 20

// HookRequest is what an order hook receives: the order payload plus the
// delivery or request it belongs to.
type HookRequest struct {
	Stage      string          `json:"stage"`
	Phase      ports.StageType `json:"phase"`
	OrderID    int64           `json:"order_id,omitempty"`
	Resource   string          `json:"resource,omitempty"`
	Topic      string          `json:"topic,omitempty"`
	Subscriber string          `json:"subscriber,omitempty"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Order      json.RawMessage `json:"order"`
}

// HookResponse is an order hook's verdict. Order replaces the payload when
// Action is mutate.
type HookResponse struct {
	Action ports.StageAction `json:"action"`
	Order  json.RawMessage   `json:"order,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// hookStatusError is a non-2xx answer from an order hook. 4xx answers are
// not retried.
type hookStatusError struct {
	status int
	body   string
}

func (e *hookStatusError) Error() string {
	return fmt.Sprintf("order hook returned status %d: %s", e.status, e.body)
}

// WebhookStage hands each order to an external HTTP hook, e.g. an ERP
// validation service, and applies its verdict.
type WebhookStage struct {
	name      string
	stageType ports.StageType
	url       string
	onError   ports.StageAction
	retries   int
	backoff   time.Duration
	headers   map[string]string
	client    *http.Client
	logger    *slog.Logger
}

// WebhookStageConfig configures a webhook stage.
type WebhookStageConfig struct {
	Name    string
	Type    ports.StageType
	URL     string
	Timeout time.Duration
	OnError ports.StageAction // allow or deny (default: deny)
	Retries int
	// Backoff is the pause before the first retry, doubled after each one.
	Backoff time.Duration
	Headers map[string]string
	// Transport overrides the HTTP transport, e.g. with safehttp.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewWebhookStage creates a new webhook stage.
func NewWebhookStage(cfg WebhookStageConfig) *WebhookStage {
	onError := cfg.OnError
	if onError == "" {
		onError = ports.ActionDeny
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookStage{
		name:      cfg.Name,
		stageType: cfg.Type,
		url:       cfg.URL,
		onError:   onError,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
		headers:   cfg.Headers,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		logger: logger,
	}
}

func (s *WebhookStage) Name() string {
	return s.name
}

func (s *WebhookStage) Type() ports.StageType {
	return s.stageType
}

// Process sends the order to the hook, retrying transport failures and 5xx
// answers. When every attempt fails the configured on_error action applies.
func (s *WebhookStage) Process(ctx context.Context, in *ports.StageInput) (*ports.StageOutput, error) {
	body, err := json.Marshal(s.hookRequest(in))
	if err != nil {
		return nil, fmt.Errorf("marshal hook request: %w", err)
	}
	requestID, _ := in.Metadata[ports.MetaRequestID].(string)

	var lastErr error
	wait := s.backoff
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 && wait > 0 {
			select {
			case <-ctx.Done():
				return s.handleError(ctx.Err())
			case <-time.After(wait):
			}
			wait *= 2
		}

		output, err := s.call(ctx, body, requestID)
		if err == nil {
			return output, nil
		}
		lastErr = err

		var statusErr *hookStatusError
		if ctx.Err() != nil || (errors.As(err, &statusErr) && statusErr.status < 500) {
			break
		}
	}

	return s.handleError(lastErr)
}

func (s *WebhookStage) hookRequest(in *ports.StageInput) *HookRequest {
	req := &HookRequest{
		Stage: s.name,
		Phase: in.Phase,
		Order: in.Body,
	}
	req.Resource, _ = in.Metadata[ports.MetaResource].(string)
	req.Topic, _ = in.Metadata[ports.MetaTopic].(string)
	req.Subscriber, _ = in.Metadata[ports.MetaSubscriber].(string)
	req.DeliveryID, _ = in.Metadata[ports.MetaDeliveryID].(string)
	req.RequestID, _ = in.Metadata[ports.MetaRequestID].(string)

	if id, ok := metaInt(in.Metadata, ports.MetaResourceID); ok {
		req.OrderID = id
	} else if id, ok := frenet.OrderID(in.Body); ok {
		req.OrderID = id
	}
	return req
}

func (s *WebhookStage) call(ctx context.Context, body []byte, requestID string) (*ports.StageOutput, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderStage, s.name)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order hook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHookResponse))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &hookStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var verdict HookResponse
	if err := json.Unmarshal(respBody, &verdict); err != nil {
		return nil, fmt.Errorf("unmarshal hook response: %w", err)
	}

	switch verdict.Action {
	case "", ports.ActionAllow:
		return &ports.StageOutput{Action: ports.ActionAllow}, nil
	case ports.ActionDeny:
		return &ports.StageOutput{Action: ports.ActionDeny, DenyReason: verdict.Reason}, nil
	case ports.ActionMutate:
		if firstByte(verdict.Order) != '{' {
			return nil, fmt.Errorf("order hook mutate without an order object")
		}
		return &ports.StageOutput{Action: ports.ActionMutate, Body: verdict.Order}, nil
	default:
		return nil, fmt.Errorf("invalid action from order hook: %s", verdict.Action)
	}
}

func (s *WebhookStage) handleError(err error) (*ports.StageOutput, error) {
	switch s.onError {
	case ports.ActionAllow:
		s.logger.Warn("order hook failed, allowing payload",
			"stage", s.name,
			"url", s.url,
			"error", err,
		)
		return &ports.StageOutput{Action: ports.ActionAllow}, nil
	case ports.ActionDeny:
		return &ports.StageOutput{
			Action:     ports.ActionDeny,
			DenyReason: fmt.Sprintf("order hook error: %v", err),
		}, nil
	default:
		return nil, fmt.Errorf("webhook stage %s failed: %w", s.name, err)
	}
}

// firstByte returns the first non-space byte of b, or 0.
func firstByte(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

var _ ports.Stage = (*WebhookStage)(nil)
