package claudetail

import (
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
)

// classifiedRecord is one parsed JSONL line, ready to hand to the
// ingress relay.
type classifiedRecord struct {
	eventType   string
	timestampMs int64
	payload     map[string]interface{}
	scalars     map[string]interface{}
}

// knownEventTypes maps a JSONL record's "type" field to the
// event_type vocabulary C3/C8 understand (spec §4.5 step 4).
var knownEventTypes = map[string]eventmodel.EventType{
	"user":            eventmodel.EventTypeUser,
	"assistant":       eventmodel.EventTypeAssistant,
	"tool_use":        eventmodel.EventTypeToolUse,
	"tool_result":     eventmodel.EventTypeToolResult,
	"queue-operation": eventmodel.EventTypeQueueOperation,
	"system":          eventmodel.EventTypeSystem,
	"summary":         eventmodel.EventTypeSummary,
}

// classify turns a decoded JSONL record into a classifiedRecord.
// Unknown "type" values are passed through verbatim rather than
// rejected — schema drift here is a new record shape, not corruption
// (spec §4.4's "extra fields are preserved verbatim" applies equally
// to C5).
func classify(raw map[string]interface{}) classifiedRecord {
	rawType, _ := raw["type"].(string)
	eventType := string(knownEventTypes[rawType])
	if eventType == "" {
		if rawType != "" {
			eventType = rawType
		} else {
			eventType = "unknown"
		}
	}

	proj := eventmodel.ExtractClaude(raw)
	scalars := map[string]interface{}{}

	if proj.MessageRole != nil {
		scalars["message_role"] = *proj.MessageRole
	}
	if proj.MessageModel != nil {
		scalars["message_model"] = *proj.MessageModel
	}
	if proj.InputTokens != nil {
		scalars["input_tokens"] = float64(*proj.InputTokens)
	}
	if proj.OutputTokens != nil {
		scalars["output_tokens"] = float64(*proj.OutputTokens)
	}
	if proj.CacheCreationInputTokens != nil {
		scalars["cache_creation_input_tokens"] = float64(*proj.CacheCreationInputTokens)
	}
	if proj.CacheReadInputTokens != nil {
		scalars["cache_read_input_tokens"] = float64(*proj.CacheReadInputTokens)
	}
	if proj.UUID != nil {
		scalars["uuid"] = *proj.UUID
	}
	if proj.ParentUUID != nil {
		scalars["parent_uuid"] = *proj.ParentUUID
	}
	if proj.CWD != nil {
		scalars["cwd"] = *proj.CWD
	}
	if proj.GitBranch != nil {
		scalars["git_branch"] = *proj.GitBranch
	}
	if v := eventmodel.StringField(raw, "requestId"); v != nil {
		scalars["request_id"] = *v
	}
	if v := eventmodel.StringField(raw, "agentId"); v != nil {
		scalars["agent_id"] = *v
	}
	if v := eventmodel.StringField(raw, "userType"); v != nil {
		scalars["user_type"] = *v
	}

	return classifiedRecord{
		eventType:   eventType,
		timestampMs: extractTimestampMs(raw),
		payload:     raw,
		scalars:     scalars,
	}
}

// extractTimestampMs reads raw["timestamp"], accepting either an
// epoch-millisecond number or an RFC3339 string (both shapes appear
// across Claude Code's transcript schema revisions).
func extractTimestampMs(raw map[string]interface{}) int64 {
	if ms := eventmodel.IntField(raw, "timestamp"); ms != nil {
		return *ms
	}
	if s, ok := raw["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UnixMilli()
		}
	}
	return time.Now().UTC().UnixMilli()
}
