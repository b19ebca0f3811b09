// Package webhook relays WooCommerce webhook deliveries to their subscribers,
// running the payload pipeline on the way.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pipeline"
	"github.com/tjfontaine/frenet-gateway/internal/server"
)

// MaxBodyBytes bounds the size of an inbound delivery.
const MaxBodyBytes = 10 << 20

// Subscriber is one relayed webhook.
type Subscriber struct {
	Name string
	// Secret verifies inbound deliveries. Empty disables verification.
	Secret string
	// OutboundSecret re-signs patched payloads. Empty drops a stale signature.
	OutboundSecret string
	Sink           ports.Sink
}

type Handler struct {
	subscribers map[string]*Subscriber
	pipeline    ports.PipelineExecutor
	logger      *slog.Logger
}

// NewHandler creates a relay handler. A nil pipeline forwards payloads unchanged.
func NewHandler(p ports.PipelineExecutor, logger *slog.Logger, subscribers ...*Subscriber) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		subscribers: make(map[string]*Subscriber, len(subscribers)),
		pipeline:    p,
		logger:      logger,
	}
	for _, s := range subscribers {
		h.subscribers[s.Name] = s
	}
	return h
}

// Register mounts the relay on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/{name}", h.HandleDelivery)
}

// DeliveryResponse is returned to WooCommerce.
type DeliveryResponse struct {
	Status           string `json:"status"`
	DeliveryID       string `json:"delivery_id,omitempty"`
	SubscriberStatus int    `json:"subscriber_status,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

func (h *Handler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := server.GetRequestID(ctx)
	name := chi.URLParam(r, "name")

	sub, ok := h.subscribers[name]
	if !ok {
		http.Error(w, "unknown webhook", http.StatusNotFound)
		return
	}
	server.AddLogField(ctx, "subscriber", name)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		server.AddError(ctx, err)
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}

	if webhookID, ok := IsPing(r, body); ok {
		h.logger.Info("webhook ping received",
			slog.String("request_id", requestID),
			slog.String("subscriber", name),
			slog.Int64("webhook_id", webhookID),
		)
		writeJSON(w, http.StatusOK, DeliveryResponse{Status: "pong"})
		return
	}

	if err := Verify(body, r.Header.Get(HeaderSignature), sub.Secret); err != nil {
		h.logger.Warn("rejected webhook delivery",
			slog.String("request_id", requestID),
			slog.String("subscriber", name),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	d := ParseDelivery(r, name, body)
	server.AddLogField(ctx, "delivery_id", d.ID)
	server.AddLogField(ctx, "topic", d.Topic)

	patched := body
	if h.pipeline != nil {
		patched, err = h.pipeline.RunWebhook(ctx, body, map[string]any{
			ports.MetaResource:   d.Resource,
			ports.MetaResourceID: d.ResourceID,
			ports.MetaWebhookID:  d.WebhookID,
			ports.MetaTopic:      d.Topic,
			ports.MetaDeliveryID: d.ID,
			ports.MetaSubscriber: name,
			ports.MetaRequestID:  requestID,
		})
		if err != nil {
			var denied *pipeline.DeniedError
			if errors.As(err, &denied) {
				h.logger.Info("webhook delivery denied by pipeline",
					slog.String("request_id", requestID),
					slog.String("delivery_id", d.ID),
					slog.String("stage", denied.StageName),
					slog.String("reason", denied.Reason),
				)
				writeJSON(w, http.StatusAccepted, DeliveryResponse{
					Status:     "denied",
					DeliveryID: d.ID,
					Reason:     denied.Reason,
				})
				return
			}
			h.logger.Error("webhook pipeline failed",
				slog.String("request_id", requestID),
				slog.String("delivery_id", d.ID),
				slog.String("error", err.Error()),
			)
			server.AddError(ctx, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	d.Body = patched
	switch {
	case sub.OutboundSecret != "":
		d.Headers[HeaderSignature] = Sign(patched, sub.OutboundSecret)
	case !bytes.Equal(patched, body):
		delete(d.Headers, HeaderSignature)
	}

	res, err := sub.Sink.Deliver(ctx, d)
	if err != nil {
		h.logger.Error("webhook delivery failed",
			slog.String("request_id", requestID),
			slog.String("delivery_id", d.ID),
			slog.String("subscriber", name),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		http.Error(w, "subscriber delivery failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, DeliveryResponse{
		Status:           "delivered",
		DeliveryID:       d.ID,
		SubscriberStatus: res.StatusCode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
