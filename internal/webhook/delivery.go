package webhook

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/frenet"
)

// WooCommerce delivery headers.
const (
	HeaderTopic      = "X-WC-Webhook-Topic"
	HeaderResource   = "X-WC-Webhook-Resource"
	HeaderEvent      = "X-WC-Webhook-Event"
	HeaderID         = "X-WC-Webhook-ID"
	HeaderDeliveryID = "X-WC-Webhook-Delivery-ID"
	HeaderSource     = "X-WC-Webhook-Source"
	HeaderSignature  = "X-WC-Webhook-Signature"
)

var forwardedHeaders = []string{
	HeaderTopic,
	HeaderResource,
	HeaderEvent,
	HeaderID,
	HeaderDeliveryID,
	HeaderSource,
	HeaderSignature,
	"User-Agent",
}

// ParseDelivery builds a delivery from an inbound WooCommerce request and its body.
// The resource falls back to the first segment of the topic ("order.updated").
// A missing delivery id is replaced with a generated one.
func ParseDelivery(r *http.Request, subscriber string, body []byte) *domain.WebhookDelivery {
	h := r.Header

	d := &domain.WebhookDelivery{
		ID:         h.Get(HeaderDeliveryID),
		Subscriber: subscriber,
		Topic:      h.Get(HeaderTopic),
		Resource:   h.Get(HeaderResource),
		Event:      h.Get(HeaderEvent),
		Source:     h.Get(HeaderSource),
		Headers:    make(map[string]string, len(forwardedHeaders)),
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Resource == "" && d.Topic != "" {
		d.Resource, _, _ = strings.Cut(d.Topic, ".")
	}
	d.WebhookID, _ = strconv.ParseInt(h.Get(HeaderID), 10, 64)
	d.ResourceID, _ = frenet.OrderID(body)

	for _, name := range forwardedHeaders {
		if v := h.Get(name); v != "" {
			d.Headers[name] = v
		}
	}
	return d
}

// IsPing reports whether body is the form-encoded ping WooCommerce sends when
// a webhook is created or its delivery URL changes.
func IsPing(r *http.Request, body []byte) (int64, bool) {
	if r.Header.Get(HeaderTopic) != "" || len(body) == 0 || body[0] == '{' || body[0] == '[' {
		return 0, false
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return 0, false
	}
	raw := values.Get("webhook_id")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
