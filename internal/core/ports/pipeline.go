// Package ports defines the core interfaces for the gateway.
// This file contains the pipeline stage interfaces for payload mutation.
package ports

import (
	"context"
	"encoding/json"
)

// StageType determines which payloads a stage sees.
type StageType string

const (
	// StageWebhook runs on outbound webhook payloads.
	StageWebhook StageType = "webhook"
	// StageREST runs on REST order objects before they are returned.
	StageREST StageType = "rest"
)

// StageAction is the result action from a pipeline stage.
type StageAction string

const (
	// ActionAllow passes the body through unchanged.
	ActionAllow StageAction = "allow"
	// ActionDeny stops the payload.
	ActionDeny StageAction = "deny"
	// ActionMutate continues with the body returned by the stage.
	ActionMutate StageAction = "mutate"
)

// Metadata keys set by the webhook relay and REST proxy.
const (
	MetaResource   = "resource"
	MetaResourceID = "resource_id"
	MetaWebhookID  = "webhook_id"
	MetaTopic      = "topic"
	MetaDeliveryID = "delivery_id"
	MetaSubscriber = "subscriber"
	MetaRequestID  = "request_id"
)

// StageInput is the data sent to a pipeline stage.
type StageInput struct {
	// Phase is "webhook" or "rest".
	Phase StageType `json:"phase"`
	// Body is the JSON payload (a webhook payload or one order object).
	Body json.RawMessage `json:"body"`
	// Metadata contains contextual information about the delivery or request.
	Metadata map[string]any `json:"metadata"`
}

// StageOutput is returned from a pipeline stage.
type StageOutput struct {
	// Action indicates what should happen: allow, deny, or mutate.
	Action StageAction `json:"action"`
	// Body is the mutated payload (only if Action is mutate).
	Body json.RawMessage `json:"body,omitempty"`
	// DenyReason explains why the payload was denied.
	DenyReason string `json:"deny_reason,omitempty"`
}

// Stage processes a payload in the pipeline.
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string
	// Type returns which payloads this stage runs on.
	Type() StageType
	// Process executes the stage logic.
	Process(ctx context.Context, in *StageInput) (*StageOutput, error)
}

// PipelineExecutor orchestrates pipeline stage execution.
type PipelineExecutor interface {
	// RunWebhook executes all webhook stages in order.
	// Returns the (possibly mutated) payload or an error if denied.
	RunWebhook(ctx context.Context, body []byte, meta map[string]any) ([]byte, error)

	// RunREST executes all REST stages in order on a single order object.
	RunREST(ctx context.Context, body []byte, meta map[string]any) ([]byte, error)
}
