package domain

import "time"

// Phase identifies where a payload was patched.
type Phase string

const (
	PhaseWebhook Phase = "webhook"
	PhaseREST    Phase = "rest"
)

// RewriteEvent records one shipping line whose method id was replaced.
type RewriteEvent struct {
	ID           string    `json:"id" db:"id"`
	Phase        Phase     `json:"phase" db:"phase"`
	OrderID      int64     `json:"order_id" db:"order_id"`
	LineIndex    int       `json:"line_index" db:"line_index"`
	InstanceID   string    `json:"instance_id,omitempty" db:"instance_id"`
	FromMethodID string    `json:"from_method_id" db:"from_method_id"`
	ToMethodID   string    `json:"to_method_id" db:"to_method_id"`
	RequestID    string    `json:"request_id,omitempty" db:"request_id"`
	DeliveryID   string    `json:"delivery_id,omitempty" db:"delivery_id"`
	Subscriber   string    `json:"subscriber,omitempty" db:"subscriber"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
