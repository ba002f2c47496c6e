package ingress

import (
	"context"

	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
)

// Relay is the in-process ingress path used by the Cursor extension
// (C4) when it runs in the same process as the ingress worker,
// skipping the HTTP round trip entirely while going through the same
// validation and enqueue logic as POST /events.
type Relay struct {
	ingress *Ingress
}

// NewRelay builds a Relay backed by ing.
func NewRelay(ing *Ingress) *Relay {
	return &Relay{ingress: ing}
}

// Emit enqueues one already-classified event. eventType, payload,
// timestampMs (used only when > 0) and workspaceHash (used only when
// non-empty) mirror the fields a cursormonitor or claudetail source
// assembles per spec §4.4/§4.5; Emit sends no metadata.
// scalars carries the well-known projection keys (composer_id,
// bubble_id, message_role, uuid, ...); callers typically build it from
// eventmodel.ExtractCursorGeneration/ExtractCursorBubble/ExtractClaude.
// May be nil.
func (r *Relay) Emit(ctx context.Context, platform, sessionID, eventType string, payload interface{}, timestampMs int64, workspaceHash string, scalars map[string]interface{}) (*eventmodel.Event, error) {
	event := map[string]interface{}{
		"event_type": eventType,
		"payload":    payload,
	}
	for k, v := range scalars {
		event[k] = v
	}
	if timestampMs > 0 {
		// eventmodel.IntField expects the JSON-decoded float64 shape
		// used by the HTTP path, so the in-process path matches it.
		event["timestamp"] = float64(timestampMs)
	}
	if workspaceHash != "" {
		event["workspace_hash"] = workspaceHash
	}

	return r.ingress.Accept(ctx, Request{
		Event:     event,
		Platform:  platform,
		SessionID: sessionID,
	})
}
