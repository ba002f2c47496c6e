// Package ingress implements event ingress (C3): the single entry
// point through which both the Cursor extension (in-process) and
// external hooks (HTTP) hand events to the message queue. Both paths
// assign an event_id if absent, stamp enqueued_at, compress the
// payload, and append to mqueue.StreamMessageQueue, never blocking
// the caller beyond a short enqueue timeout (spec §4.3).
package ingress

import (
	"context"
	"strconv"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/errkind"
	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/mqueue"
	"github.com/google/uuid"
)

// Request is the caller-supplied shape for one inbound event, shared
// by both the HTTP handler and the in-process relay.
type Request struct {
	Event     map[string]interface{} `json:"event"`
	Platform  string                  `json:"platform"`
	SessionID string                  `json:"session_id"`
}

// Ingress validates and enqueues inbound events. It never blocks a
// caller beyond broker.Append's bounded timeout; if the queue is
// unreachable, the event is dropped (spec §4.2's explicit trade-off:
// never block the IDE).
type Ingress struct {
	broker mqueue.Broker
	logger *events.EventLogger
}

// New builds an Ingress over broker. logger may be nil, in which case
// an "ingress"-scoped EventLogger is used.
func New(broker mqueue.Broker, logger *events.EventLogger) *Ingress {
	if logger == nil {
		logger = events.NewEventLogger("ingress")
	}
	return &Ingress{broker: broker, logger: logger}
}

// Accept validates req, assembles a canonical Event, compresses its
// payload, stamps enqueued_at, and appends it to the message queue.
// Returns a *errkind.ValidationError for a malformed request; a broker
// error is logged and returned wrapped in a *errkind.TransientIOError
// for the caller to swallow — the event is understood to be lost.
func (ing *Ingress) Accept(ctx context.Context, req Request) (*eventmodel.Event, error) {
	platform, err := normalizePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, errkind.NewValidationError("session_id", "must not be empty")
	}
	if req.Event == nil {
		return nil, errkind.NewValidationError("event", "must not be empty")
	}

	eventType, _ := req.Event["event_type"].(string)
	if eventType == "" {
		return nil, errkind.NewValidationError("event.event_type", "must not be empty")
	}

	timestampMs := eventmodel.IntField(req.Event, "timestamp")
	ts := time.Now().UTC().UnixMilli()
	if timestampMs != nil {
		ts = *timestampMs
	}

	eventID, _ := req.Event["event_id"].(string)
	if eventID == "" {
		eventID = uuid.NewString()
	}

	payload, err := encodePayload(req.Event["payload"])
	if err != nil {
		return nil, errkind.NewValidationError("event.payload", err.Error())
	}

	var metadata []byte
	if m, err := encodePayload(req.Event["metadata"]); err == nil && len(m) > 0 && string(m) != "null" {
		metadata = m
	}

	ev := &eventmodel.Event{
		EventID:           eventID,
		Platform:          eventmodel.Platform(platform),
		EventType:         eventmodel.EventType(eventType),
		TimestampMs:       ts,
		ExternalSessionID: req.SessionID,
		Payload:           payload,
		Metadata:          metadata,
	}
	if wh, ok := req.Event["workspace_hash"].(string); ok && wh != "" {
		ev.WorkspaceHash = wh
	}
	applyScalarProjections(ev, req.Event)

	fields, err := eventmodel.EncodeStreamFields(ev)
	if err != nil {
		return nil, errkind.NewValidationError("event", err.Error())
	}
	fields["enqueued_at"] = strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)

	if _, err := ing.broker.Append(ctx, mqueue.StreamMessageQueue, fields); err != nil {
		ing.logger.LogPollError("ingress.append", 1, err)
		return nil, errkind.NewTransientIOError("append to message queue", err)
	}

	return ev, nil
}

func normalizePlatform(p string) (string, error) {
	switch p {
	case eventmodel.PlatformCursor, eventmodel.PlatformClaudeCode:
		return p, nil
	default:
		return "", errkind.NewValidationError("platform", "must be \"cursor\" or \"claude_code\"")
	}
}
