package frenet

import (
	"fmt"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
)

// WebhookPatcher patches order payloads right before a webhook delivery.
type WebhookPatcher struct {
	logger Logger
}

// NewWebhookPatcher creates a webhook patcher. A nil logger disables logging.
func NewWebhookPatcher(logger Logger) *WebhookPatcher {
	return &WebhookPatcher{logger: orNop(logger)}
}

// Patch returns payload with its frenet shipping lines rewritten. Payloads of
// resources other than orders are returned unchanged.
func (p *WebhookPatcher) Patch(payload []byte, resource string, resourceID, webhookID int64) []byte {
	out, _ := p.Apply(payload, resource, resourceID, webhookID)
	return out
}

// Apply is Patch that also reports the substitutions made.
func (p *WebhookPatcher) Apply(payload []byte, resource string, resourceID, webhookID int64) ([]byte, []Substitution) {
	if resource != domain.ResourceOrder {
		return payload, nil
	}

	out, subs := RewriteShippingLines(payload)
	for _, s := range subs {
		p.logger.Info(
			fmt.Sprintf("Frenet Fix: order #%d - method_id changed from %q to %q", resourceID, s.From, s.To),
			"source", LogSource,
			"order_id", resourceID,
			"webhook_id", webhookID,
			"method_id", s.To,
		)
	}
	return out, subs
}
