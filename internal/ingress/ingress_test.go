package ingress

import (
	"context"
	"testing"

	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
	"github.com/blueplane-ai/bp-telemetry-core/internal/mqueue"
)

func TestAcceptValidEventEnqueuesToMessageQueue(t *testing.T) {
	broker := mqueue.NewFakeBroker()
	ing := New(broker, nil)

	ev, err := ing.Accept(context.Background(), Request{
		Event: map[string]interface{}{
			"event_type": "bubble",
			"payload":    map[string]interface{}{"text": "hello"},
		},
		Platform:  string(eventmodel.PlatformCursor),
		SessionID: "curs_123_abc",
	})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if ev.EventID == "" {
		t.Error("expected a generated event_id")
	}

	if err := broker.EnsureGroup(context.Background(), mqueue.StreamMessageQueue, mqueue.ProcessorsGroup); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	msgs, err := broker.ReadGroup(context.Background(), mqueue.StreamMessageQueue, mqueue.ProcessorsGroup, "c1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(msgs))
	}

	decoded, err := eventmodel.DecodeStreamFields(msgs[0].Fields)
	if err != nil {
		t.Fatalf("DecodeStreamFields failed: %v", err)
	}
	if decoded.EventID != ev.EventID {
		t.Errorf("EventID mismatch: got %s, want %s", decoded.EventID, ev.EventID)
	}
}

func TestAcceptRejectsUnknownPlatform(t *testing.T) {
	ing := New(mqueue.NewFakeBroker(), nil)

	_, err := ing.Accept(context.Background(), Request{
		Event:     map[string]interface{}{"event_type": "x"},
		Platform:  "windsurf",
		SessionID: "s1",
	})
	if err == nil {
		t.Fatal("expected validation error for unknown platform")
	}
}

func TestAcceptRejectsMissingSessionID(t *testing.T) {
	ing := New(mqueue.NewFakeBroker(), nil)

	_, err := ing.Accept(context.Background(), Request{
		Event:    map[string]interface{}{"event_type": "x"},
		Platform: string(eventmodel.PlatformClaudeCode),
	})
	if err == nil {
		t.Fatal("expected validation error for missing session_id")
	}
}

func TestAcceptPreservesSuppliedEventID(t *testing.T) {
	ing := New(mqueue.NewFakeBroker(), nil)

	ev, err := ing.Accept(context.Background(), Request{
		Event: map[string]interface{}{
			"event_id":   "evt-fixed",
			"event_type": "user",
			"payload":    map[string]interface{}{"text": "hi"},
		},
		Platform:  string(eventmodel.PlatformClaudeCode),
		SessionID: "session-uuid",
	})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if ev.EventID != "evt-fixed" {
		t.Errorf("expected supplied event_id to be preserved, got %s", ev.EventID)
	}
}

func TestAcceptPopulatesScalarProjections(t *testing.T) {
	ing := New(mqueue.NewFakeBroker(), nil)

	composerID := "composer-1"
	ev, err := ing.Accept(context.Background(), Request{
		Event: map[string]interface{}{
			"event_type":  "bubble",
			"payload":     map[string]interface{}{"text": "hi"},
			"composer_id": composerID,
			"lines_added": float64(12),
		},
		Platform:  string(eventmodel.PlatformCursor),
		SessionID: "curs_1_a",
	})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if ev.ComposerID == nil || *ev.ComposerID != composerID {
		t.Fatalf("expected ComposerID %q, got %+v", composerID, ev.ComposerID)
	}
	if ev.LinesAdded == nil || *ev.LinesAdded != 12 {
		t.Fatalf("expected LinesAdded 12, got %+v", ev.LinesAdded)
	}
}
