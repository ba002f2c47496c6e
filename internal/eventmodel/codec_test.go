package eventmodel

import (
	"bytes"
	"testing"
)

func sampleEvent() *Event {
	composerID := "c1"
	bubbleID := "b1"
	tokens := int64(42)
	role := "user"

	return &Event{
		EventID:            "evt-1",
		Platform:           PlatformCursor,
		EventType:          EventTypeBubble,
		TimestampMs:        1700000000000,
		ExternalSessionID:  "curs_123_abc",
		WorkspaceHash:      "deadbeefcafef00d",
		ComposerID:         &composerID,
		BubbleID:           &bubbleID,
		TokenCountUpToHere: &tokens,
		MessageRole:        &role,
		Payload:            []byte(`{"text":"hi"}`),
		RelevantFiles:      []byte(`["a.go","b.go"]`),
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := []byte(`{"hello":"world","n":1}`)

	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if bytes.Equal(compressed, data) {
		t.Fatal("expected compressed output to differ from input")
	}

	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Fatalf("round trip mismatch: got %s, want %s", decompressed, data)
	}
}

func TestCompressIsDeterministic(t *testing.T) {
	data := []byte(`{"a":1,"b":[1,2,3]}`)

	c1, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	c2, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if !bytes.Equal(c1, c2) {
		t.Fatal("expected identical compressed output for identical input")
	}
}

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	e := sampleEvent()

	blob, err := EncodeRow(e)
	if err != nil {
		t.Fatalf("EncodeRow failed: %v", err)
	}

	got, err := DecodeRow(blob)
	if err != nil {
		t.Fatalf("DecodeRow failed: %v", err)
	}

	if got.EventID != e.EventID {
		t.Errorf("EventID mismatch: got %s, want %s", got.EventID, e.EventID)
	}
	if got.Platform != e.Platform {
		t.Errorf("Platform mismatch: got %s, want %s", got.Platform, e.Platform)
	}
	if got.ComposerID == nil || *got.ComposerID != *e.ComposerID {
		t.Errorf("ComposerID mismatch: got %v, want %v", got.ComposerID, e.ComposerID)
	}
	if !bytes.Equal(got.Payload, e.Payload) {
		t.Errorf("Payload mismatch: got %s, want %s", got.Payload, e.Payload)
	}
	if !bytes.Equal(got.RelevantFiles, e.RelevantFiles) {
		t.Errorf("RelevantFiles mismatch: got %s, want %s", got.RelevantFiles, e.RelevantFiles)
	}
	if got.BubbleID == nil || *got.BubbleID != "b1" {
		t.Errorf("BubbleID mismatch: got %v", got.BubbleID)
	}
	if got.GenerationUUID != nil {
		t.Errorf("expected absent GenerationUUID to decode as nil, got %v", *got.GenerationUUID)
	}
}

func TestEncodeDecodeStreamFieldsRoundTrip(t *testing.T) {
	e := sampleEvent()

	fields, err := EncodeStreamFields(e)
	if err != nil {
		t.Fatalf("EncodeStreamFields failed: %v", err)
	}

	for _, key := range []string{"event_id", "platform", "event_type", "timestamp", "external_session_id", "payload", "workspace_hash"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected field %q in encoded stream fields", key)
		}
	}

	// Simulate what go-redis hands back from XReadGroup: map[string]interface{}
	// with string values (the payload blob included, since go-redis
	// returns stream field values as strings).
	roundTripped := map[string]interface{}{
		"payload": string(fields["payload"].([]byte)),
	}

	got, err := DecodeStreamFields(roundTripped)
	if err != nil {
		t.Fatalf("DecodeStreamFields failed: %v", err)
	}
	if got.EventID != e.EventID {
		t.Errorf("EventID mismatch: got %s, want %s", got.EventID, e.EventID)
	}
}

func TestDecodeStreamFieldsMissingPayload(t *testing.T) {
	_, err := DecodeStreamFields(map[string]interface{}{"event_id": "x"})
	if err == nil {
		t.Fatal("expected error for missing payload field")
	}
}

func TestExtractionsDefaultToNilNotZero(t *testing.T) {
	gen := ExtractCursorGeneration(map[string]interface{}{})
	if gen.GenerationUUID != nil {
		t.Error("expected nil GenerationUUID for absent field")
	}
	if gen.UnixMs != 0 {
		t.Error("expected zero UnixMs when entirely absent (documented zero-value exception)")
	}

	bubble := ExtractCursorBubble(map[string]interface{}{"bubbleId": "b9"})
	if bubble.Role != nil {
		t.Error("expected nil Role when type field absent")
	}
	if bubble.TokenCountUpToHere != nil {
		t.Error("expected nil TokenCountUpToHere when absent")
	}
}

func TestExtractClaudePrefersMessageRoleOverTopLevel(t *testing.T) {
	raw := map[string]interface{}{
		"uuid": "u1",
		"role": "user",
		"message": map[string]interface{}{
			"role":  "assistant",
			"model": "claude-test",
			"usage": map[string]interface{}{
				"input_tokens":  float64(10),
				"output_tokens": float64(20),
			},
		},
	}

	p := ExtractClaude(raw)
	if p.MessageRole == nil || *p.MessageRole != "assistant" {
		t.Errorf("expected role 'assistant', got %v", p.MessageRole)
	}
	if p.InputTokens == nil || *p.InputTokens != 10 {
		t.Errorf("expected InputTokens 10, got %v", p.InputTokens)
	}
	if p.MessageModel == nil || *p.MessageModel != "claude-test" {
		t.Errorf("expected model 'claude-test', got %v", p.MessageModel)
	}
}
