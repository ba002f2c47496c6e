package eventmodel

// Projection extraction helpers used by C4 (cursormonitor) and C5
// (claudetail) when assembling an Event from a parsed JSON object.
// Every helper returns nil rather than a zero value when the field is
// absent or of the wrong type — per spec §4.1's invariant, unknown
// scalar projections must default to NULL, never a fabricated zero.

// StringField extracts a string field, or nil if absent/wrong type.
func StringField(m map[string]interface{}, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// IntField extracts an integer field (JSON numbers decode as
// float64), or nil if absent/wrong type.
func IntField(m map[string]interface{}, key string) *int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

// BoolField extracts a bool field, defaulting to false when absent
// (unlike the pointer-typed fields, Cursor's isArchived/unifiedMode
// flags are consumed as plain bools by the diff logic in sources.go,
// never surfaced as a raw_traces column).
func BoolField(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// CursorGenerationProjections holds the fields extracted from one
// element of `aiService.generations` (spec §4.4 source 1).
type CursorGenerationProjections struct {
	GenerationUUID  *string
	UnixMs          int64 // not a pointer: 0 when unixMs is absent
	GenerationType  *string
	Description     *string
}

// ExtractCursorGeneration extracts the generation projection fields
// from a decoded `aiService.generations` array element.
func ExtractCursorGeneration(raw map[string]interface{}) CursorGenerationProjections {
	p := CursorGenerationProjections{
		GenerationUUID: StringField(raw, "generationUUID"),
		GenerationType: StringField(raw, "type"),
		Description:    StringField(raw, "textDescription"),
	}
	if ms := IntField(raw, "unixMs"); ms != nil {
		p.UnixMs = *ms
	}
	return p
}

// CursorBubbleProjections holds the fields extracted from one
// conversation bubble (spec §4.4 source 3).
type CursorBubbleProjections struct {
	BubbleID           *string
	Role               *string // "user" or "ai", mapped from numeric type
	Text               *string
	TokenCountUpToHere *int64
	RelevantFiles      interface{}
	CapabilitiesRan    interface{}
	CapabilityStatuses interface{}
}

// ExtractCursorBubble extracts the bubble projection fields from a
// decoded conversation array element. type 1=user, 2=ai per spec §4.4.
func ExtractCursorBubble(raw map[string]interface{}) CursorBubbleProjections {
	p := CursorBubbleProjections{
		BubbleID:           StringField(raw, "bubbleId"),
		Text:               StringField(raw, "text"),
		TokenCountUpToHere: IntField(raw, "tokenCountUpUntilHere"),
		RelevantFiles:      raw["relevantFiles"],
		CapabilitiesRan:    raw["capabilitiesRan"],
		CapabilityStatuses: raw["capabilityStatuses"],
	}
	if t := IntField(raw, "type"); t != nil {
		role := "ai"
		if *t == 1 {
			role = "user"
		}
		p.Role = &role
	}
	return p
}

// ClaudeProjections holds the scalar fields extracted from one parsed
// Claude JSONL line (spec §4.5 step 4).
type ClaudeProjections struct {
	MessageRole              *string
	MessageModel             *string
	InputTokens              *int64
	OutputTokens             *int64
	CacheCreationInputTokens *int64
	CacheReadInputTokens     *int64
	UUID                     *string
	ParentUUID               *string
	CWD                      *string
	GitBranch                *string
}

// ExtractClaude extracts the scalar projections from a decoded Claude
// JSONL record. Callers pass the top-level record: model/token fields
// are read from its nested "message" object, uuid/parentUuid/cwd/
// gitBranch from the top level, and the role from "message" with a
// top-level "role" used only when "message" has none.
func ExtractClaude(raw map[string]interface{}) ClaudeProjections {
	message, _ := raw["message"].(map[string]interface{})

	p := ClaudeProjections{
		UUID:       StringField(raw, "uuid"),
		ParentUUID: StringField(raw, "parentUuid"),
		CWD:        StringField(raw, "cwd"),
		GitBranch:  StringField(raw, "gitBranch"),
	}

	if message != nil {
		p.MessageRole = StringField(message, "role")
		p.MessageModel = StringField(message, "model")
		if usage, ok := message["usage"].(map[string]interface{}); ok {
			p.InputTokens = IntField(usage, "input_tokens")
			p.OutputTokens = IntField(usage, "output_tokens")
			p.CacheCreationInputTokens = IntField(usage, "cache_creation_input_tokens")
			p.CacheReadInputTokens = IntField(usage, "cache_read_input_tokens")
		}
	}
	if p.MessageRole == nil {
		p.MessageRole = StringField(raw, "role")
	}

	return p
}
