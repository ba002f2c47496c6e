package eventmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// Compress zlib-compresses data at the default level. Compression is
// deterministic for identical input: the klauspost/compress/zlib
// writer emits no random header bytes, so two encodes of the same
// payload byte-for-byte produce the same compressed output (spec §4.1).
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("eventmodel: create zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("eventmodel: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("eventmodel: zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("eventmodel: create zlib reader: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("eventmodel: zlib read: %w", err)
	}
	return buf.Bytes(), nil
}

// streamEnvelope is the JSON shape stored, zlib-compressed, in the
// stream wire form's "payload" field and (unwrapped) in the row form's
// "event_data" column. It carries the full Event so that decode is
// exact, not just the caller-supplied payload.
type streamEnvelope struct {
	EventID                  string          `json:"event_id"`
	Platform                 Platform        `json:"platform"`
	EventType                EventType       `json:"event_type"`
	TimestampMs              int64           `json:"timestamp_ms"`
	ExternalSessionID        string          `json:"external_session_id"`
	WorkspaceHash            string          `json:"workspace_hash,omitempty"`
	Sequence                 int64           `json:"sequence,omitempty"`
	Payload                  json.RawMessage `json:"payload"`
	ComposerID               *string         `json:"composer_id,omitempty"`
	BubbleID                 *string         `json:"bubble_id,omitempty"`
	GenerationUUID           *string         `json:"generation_uuid,omitempty"`
	LinesAdded               *int64          `json:"lines_added,omitempty"`
	LinesRemoved             *int64          `json:"lines_removed,omitempty"`
	TokenCountUpToHere       *int64          `json:"token_count_up_until_here,omitempty"`
	RelevantFiles            json.RawMessage `json:"relevant_files,omitempty"`
	CapabilitiesRan          json.RawMessage `json:"capabilities_ran,omitempty"`
	CapabilityStatuses       json.RawMessage `json:"capability_statuses,omitempty"`
	MessageRole              *string         `json:"message_role,omitempty"`
	MessageModel             *string         `json:"message_model,omitempty"`
	InputTokens              *int64          `json:"input_tokens,omitempty"`
	OutputTokens             *int64          `json:"output_tokens,omitempty"`
	CacheCreationInputTokens *int64          `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int64          `json:"cache_read_input_tokens,omitempty"`
	UUID                     *string         `json:"uuid,omitempty"`
	ParentUUID               *string         `json:"parent_uuid,omitempty"`
	RequestID                *string         `json:"request_id,omitempty"`
	AgentID                  *string         `json:"agent_id,omitempty"`
	CWD                      *string         `json:"cwd,omitempty"`
	GitBranch                *string         `json:"git_branch,omitempty"`
	UserType                 *string         `json:"user_type,omitempty"`
	Metadata                 json.RawMessage `json:"metadata,omitempty"`
}

func toEnvelope(e *Event) streamEnvelope {
	return streamEnvelope{
		EventID:                  e.EventID,
		Platform:                 e.Platform,
		EventType:                e.EventType,
		TimestampMs:              e.TimestampMs,
		ExternalSessionID:        e.ExternalSessionID,
		WorkspaceHash:            e.WorkspaceHash,
		Sequence:                 e.Sequence,
		Payload:                  json.RawMessage(e.Payload),
		ComposerID:               e.ComposerID,
		BubbleID:                 e.BubbleID,
		GenerationUUID:           e.GenerationUUID,
		LinesAdded:               e.LinesAdded,
		LinesRemoved:             e.LinesRemoved,
		TokenCountUpToHere:       e.TokenCountUpToHere,
		RelevantFiles:            json.RawMessage(e.RelevantFiles),
		CapabilitiesRan:          json.RawMessage(e.CapabilitiesRan),
		CapabilityStatuses:       json.RawMessage(e.CapabilityStatuses),
		MessageRole:              e.MessageRole,
		MessageModel:             e.MessageModel,
		InputTokens:              e.InputTokens,
		OutputTokens:             e.OutputTokens,
		CacheCreationInputTokens: e.CacheCreationInputTokens,
		CacheReadInputTokens:     e.CacheReadInputTokens,
		UUID:                     e.UUID,
		ParentUUID:               e.ParentUUID,
		RequestID:                e.RequestID,
		AgentID:                  e.AgentID,
		CWD:                      e.CWD,
		GitBranch:                e.GitBranch,
		UserType:                 e.UserType,
		Metadata:                 json.RawMessage(e.Metadata),
	}
}

func fromEnvelope(env streamEnvelope) *Event {
	return &Event{
		EventID:                  env.EventID,
		Platform:                 env.Platform,
		EventType:                env.EventType,
		TimestampMs:              env.TimestampMs,
		ExternalSessionID:        env.ExternalSessionID,
		WorkspaceHash:            env.WorkspaceHash,
		Sequence:                 env.Sequence,
		Payload:                  []byte(env.Payload),
		ComposerID:               env.ComposerID,
		BubbleID:                 env.BubbleID,
		GenerationUUID:           env.GenerationUUID,
		LinesAdded:               env.LinesAdded,
		LinesRemoved:             env.LinesRemoved,
		TokenCountUpToHere:       env.TokenCountUpToHere,
		RelevantFiles:            []byte(env.RelevantFiles),
		CapabilitiesRan:          []byte(env.CapabilitiesRan),
		CapabilityStatuses:       []byte(env.CapabilityStatuses),
		MessageRole:              env.MessageRole,
		MessageModel:             env.MessageModel,
		InputTokens:              env.InputTokens,
		OutputTokens:             env.OutputTokens,
		CacheCreationInputTokens: env.CacheCreationInputTokens,
		CacheReadInputTokens:     env.CacheReadInputTokens,
		UUID:                     env.UUID,
		ParentUUID:               env.ParentUUID,
		RequestID:                env.RequestID,
		AgentID:                  env.AgentID,
		CWD:                      env.CWD,
		GitBranch:                env.GitBranch,
		UserType:                 env.UserType,
		Metadata:                 []byte(env.Metadata),
	}
}

// EncodeRow produces the zlib-compressed JSON blob stored in the
// *_raw_traces.event_data column (C8). Scalar columns are populated
// separately by the caller from the same Event; EncodeRow is only
// responsible for the opaque, fully-reconstructable blob.
func EncodeRow(e *Event) ([]byte, error) {
	env := toEnvelope(e)
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("eventmodel: marshal envelope: %w", err)
	}
	return Compress(data)
}

// DecodeRow reverses EncodeRow.
func DecodeRow(blob []byte) (*Event, error) {
	data, err := Decompress(blob)
	if err != nil {
		return nil, err
	}
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("eventmodel: unmarshal envelope: %w", err)
	}
	return fromEnvelope(env), nil
}

// EncodeStreamFields produces the flat ASCII-key field map for a
// Redis Streams XADD (spec §6): scalars as decimal/plain strings,
// payload as a zlib-compressed blob, everything else flattened
// through the same JSON envelope used by EncodeRow so a single
// round-trip covers both wire forms.
func EncodeStreamFields(e *Event) (map[string]interface{}, error) {
	compressed, err := EncodeRow(e)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"event_id":            e.EventID,
		"platform":            string(e.Platform),
		"event_type":          string(e.EventType),
		"timestamp":           strconv.FormatInt(e.TimestampMs, 10),
		"external_session_id": e.ExternalSessionID,
		"payload":             compressed,
	}
	if e.WorkspaceHash != "" {
		fields["workspace_hash"] = e.WorkspaceHash
	}
	if len(e.Metadata) > 0 {
		fields["metadata"] = string(e.Metadata)
	}
	return fields, nil
}

// DecodeStreamFields reverses EncodeStreamFields. fields values come
// back from go-redis as strings (or []byte for the payload, depending
// on client configuration); both are accepted.
func DecodeStreamFields(fields map[string]interface{}) (*Event, error) {
	payloadRaw, ok := fields["payload"]
	if !ok {
		return nil, fmt.Errorf("eventmodel: stream message missing payload field")
	}

	var compressed []byte
	switch v := payloadRaw.(type) {
	case []byte:
		compressed = v
	case string:
		compressed = []byte(v)
	default:
		return nil, fmt.Errorf("eventmodel: unsupported payload field type %T", payloadRaw)
	}

	e, err := DecodeRow(compressed)
	if err != nil {
		return nil, fmt.Errorf("eventmodel: decode stream payload: %w", err)
	}
	return e, nil
}
