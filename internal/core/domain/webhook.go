package domain

import "time"

// ResourceOrder is the WooCommerce resource name for shop orders.
const ResourceOrder = "order"

// WebhookDelivery is one inbound WooCommerce webhook delivery on its way to a subscriber.
type WebhookDelivery struct {
	ID         string            `json:"id"`
	Subscriber string            `json:"subscriber"`
	WebhookID  int64             `json:"webhook_id"`
	Topic      string            `json:"topic"`
	Resource   string            `json:"resource"`
	Event      string            `json:"event"`
	Source     string            `json:"source"`
	ResourceID int64             `json:"resource_id"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"-"`
	ReceivedAt time.Time         `json:"received_at"`
}

// IsOrder reports whether the delivery carries an order resource.
func (d *WebhookDelivery) IsOrder() bool {
	return d.Resource == ResourceOrder
}
