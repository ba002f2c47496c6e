package ingress

import "github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"

// applyScalarProjections copies the well-known Cursor/Claude scalar
// projection keys out of a caller-supplied event map and onto ev's
// typed fields, so C4/C5 sources can hand ingress a flat map (the
// same shape their source-specific extraction already produces via
// eventmodel.ExtractCursorGeneration/ExtractCursorBubble/ExtractClaude)
// and have those columns populated at C8 commit time without this
// package needing to know about any particular source's JSON layout.
func applyScalarProjections(ev *eventmodel.Event, m map[string]interface{}) {
	ev.ComposerID = eventmodel.StringField(m, "composer_id")
	ev.BubbleID = eventmodel.StringField(m, "bubble_id")
	ev.GenerationUUID = eventmodel.StringField(m, "generation_uuid")
	ev.LinesAdded = eventmodel.IntField(m, "lines_added")
	ev.LinesRemoved = eventmodel.IntField(m, "lines_removed")
	ev.TokenCountUpToHere = eventmodel.IntField(m, "token_count_up_until_here")
	if v, ok := m["relevant_files"]; ok {
		if b, err := encodePayload(v); err == nil {
			ev.RelevantFiles = b
		}
	}
	if v, ok := m["capabilities_ran"]; ok {
		if b, err := encodePayload(v); err == nil {
			ev.CapabilitiesRan = b
		}
	}
	if v, ok := m["capability_statuses"]; ok {
		if b, err := encodePayload(v); err == nil {
			ev.CapabilityStatuses = b
		}
	}

	ev.MessageRole = eventmodel.StringField(m, "message_role")
	ev.MessageModel = eventmodel.StringField(m, "message_model")
	ev.InputTokens = eventmodel.IntField(m, "input_tokens")
	ev.OutputTokens = eventmodel.IntField(m, "output_tokens")
	ev.CacheCreationInputTokens = eventmodel.IntField(m, "cache_creation_input_tokens")
	ev.CacheReadInputTokens = eventmodel.IntField(m, "cache_read_input_tokens")
	ev.UUID = eventmodel.StringField(m, "uuid")
	ev.ParentUUID = eventmodel.StringField(m, "parent_uuid")
	ev.RequestID = eventmodel.StringField(m, "request_id")
	ev.AgentID = eventmodel.StringField(m, "agent_id")
	ev.CWD = eventmodel.StringField(m, "cwd")
	ev.GitBranch = eventmodel.StringField(m, "git_branch")
	ev.UserType = eventmodel.StringField(m, "user_type")
}
