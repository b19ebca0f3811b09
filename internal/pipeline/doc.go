// Package pipeline provides the payload pipeline execution engine.
//
// The pipeline is the gateway's extension point for payload rewrites. Stages are
// ordered and can approve/deny or mutate a payload. The built-in frenet stage
// replaces the generic "frenet" shipping method id with the carrier-specific
// FRENET_ID; webhook stages call an external service.
//
// # Phases
//
// Stages are configured per phase:
//   - webhook: runs on the payload of a WooCommerce webhook delivery before it is
//     forwarded to the subscriber
//   - rest: runs on each order object returned by the WooCommerce REST API
//
// # Webhook Contract
//
// External stages receive StageInput and must return StageOutput:
//
//	POST <webhook_url>
//	Content-Type: application/json
//
//	{
//	  "phase": "webhook" | "rest",
//	  "body": { ... order payload ... },
//	  "metadata": { "resource": "order", "resource_id": 1050, ... }
//	}
//
// Response:
//
//	{
//	  "action": "allow" | "deny" | "mutate",
//	  "body": { ... },         // if mutating
//	  "deny_reason": "..."     // if denying
//	}
package pipeline
