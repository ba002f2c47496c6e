// Package eventmodel defines the canonical Event record produced by
// every ingress path (C3, C4, C5) and the encode/decode contracts
// between it and the stream wire form (C2) and SQLite row form (C8).
package eventmodel

// Platform identifies which AI assistant produced an event.
type Platform string

const (
	PlatformCursor     Platform = "cursor"
	PlatformClaudeCode Platform = "claude_code"
)

// EventType enumerates the event_type values emitted by the ingress
// paths. Ingress paths are not restricted to this list — it documents
// the values the rest of the pipeline understands, per spec §3.
type EventType string

const (
	EventTypeUser            EventType = "user"
	EventTypeAssistant       EventType = "assistant"
	EventTypeToolUse         EventType = "tool_use"
	EventTypeToolResult      EventType = "tool_result"
	EventTypeBubble          EventType = "bubble"
	EventTypeComposer        EventType = "composer"
	EventTypeGeneration      EventType = "generation"
	EventTypeFileOpened      EventType = "file_opened"
	EventTypeSessionStart    EventType = "session_start"
	EventTypeSessionEnd      EventType = "session_end"
	EventTypeQueueOperation  EventType = "queue-operation"
	EventTypeSystem          EventType = "system"
	EventTypeSummary         EventType = "summary"
	EventTypeBackgroundState EventType = "background_composer_update"
)

// Event is the canonical record produced by all ingress paths (spec §3).
//
// Invariant: Payload alone is sufficient to reconstruct every scalar
// projection below; a projection may be absent (nil/zero) but must
// never be inconsistent with Payload.
type Event struct {
	EventID           string
	Platform          Platform
	EventType         EventType
	TimestampMs       int64
	ExternalSessionID string
	WorkspaceHash     string // empty for claude_code
	Sequence          int64  // assigned at C8 commit time; zero before commit
	Payload           []byte // raw JSON, uncompressed in memory

	// Cursor-side scalar projections. Pointers distinguish "absent"
	// (nil) from a legitimate zero value.
	ComposerID          *string
	BubbleID            *string
	GenerationUUID      *string
	LinesAdded          *int64
	LinesRemoved        *int64
	TokenCountUpToHere  *int64
	RelevantFiles       []byte // raw JSON array, verbatim
	CapabilitiesRan     []byte // raw JSON, verbatim — never merged with CapabilityStatuses
	CapabilityStatuses  []byte // raw JSON, verbatim — see spec §9 open question (ii)

	// Claude-side scalar projections.
	MessageRole                *string
	MessageModel                *string
	InputTokens                  *int64
	OutputTokens                 *int64
	CacheCreationInputTokens     *int64
	CacheReadInputTokens         *int64
	UUID                         *string
	ParentUUID                   *string
	RequestID                    *string
	AgentID                      *string
	CWD                          *string
	GitBranch                    *string
	UserType                     *string

	// Metadata is an optional free-form JSON object attached by the
	// ingress caller (spec §6's `metadata?` field).
	Metadata []byte
}
