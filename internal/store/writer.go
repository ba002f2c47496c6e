package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
)

const insertCursorTrace = `
INSERT INTO cursor_raw_traces (
	event_id, external_session_id, workspace_hash, event_type, timestamp,
	event_date, event_hour, composer_id, bubble_id, generation_uuid,
	lines_added, lines_removed, token_count_up_until_here,
	relevant_files, capabilities_ran, capability_statuses, event_data
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING
`

const insertClaudeTrace = `
INSERT INTO claude_raw_traces (
	event_id, external_session_id, event_type, timestamp, uuid, parent_uuid,
	request_id, agent_id, message_role, message_model, input_tokens,
	output_tokens, cache_creation_input_tokens, cache_read_input_tokens,
	tokens_used, cwd, git_branch, user_type, event_data
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING
`

// InsertEventsBatch writes evs to the unified store in a single
// transaction (spec §4.7/§4.8): idempotent per event_id, with the
// projection columns taken from each Event's typed fields as set
// upstream; a nil field lands as NULL. No projection is extracted
// from the payload here.
// Returns the number of events attempted (not the number of rows
// actually inserted, since ON CONFLICT DO NOTHING rows still count as
// successfully processed for ack purposes) and the wall-clock commit
// latency, for C7's backpressure signal.
func (s *Store) InsertEventsBatch(ctx context.Context, evs []*eventmodel.Event) (int, time.Duration, error) {
	start := time.Now()

	err := s.write(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return inTransaction(ctx, conn, func(ctx context.Context, conn *sql.Conn) error {
			cursorStmt, err := conn.PrepareContext(ctx, insertCursorTrace)
			if err != nil {
				return fmt.Errorf("store: prepare cursor insert: %w", err)
			}
			defer cursorStmt.Close()

			claudeStmt, err := conn.PrepareContext(ctx, insertClaudeTrace)
			if err != nil {
				return fmt.Errorf("store: prepare claude insert: %w", err)
			}
			defer claudeStmt.Close()

			for _, e := range evs {
				if err := insertOne(ctx, cursorStmt, claudeStmt, e); err != nil {
					return err
				}
			}
			return nil
		})
	})

	return len(evs), time.Since(start), err
}

func insertOne(ctx context.Context, cursorStmt, claudeStmt *sql.Stmt, e *eventmodel.Event) error {
	blob, err := eventmodel.EncodeRow(e)
	if err != nil {
		return fmt.Errorf("store: encode event %s: %w", e.EventID, err)
	}

	switch e.Platform {
	case eventmodel.PlatformCursor:
		t := time.UnixMilli(e.TimestampMs).UTC()
		_, err := cursorStmt.ExecContext(ctx,
			e.EventID, e.ExternalSessionID, nullableString(e.WorkspaceHash), string(e.EventType), e.TimestampMs,
			t.Format("2006-01-02"), t.Hour(), e.ComposerID, e.BubbleID, e.GenerationUUID,
			e.LinesAdded, e.LinesRemoved, e.TokenCountUpToHere,
			nullableBlob(e.RelevantFiles), nullableBlob(e.CapabilitiesRan), nullableBlob(e.CapabilityStatuses), blob,
		)
		if err != nil {
			return fmt.Errorf("store: insert cursor trace %s: %w", e.EventID, err)
		}
	case eventmodel.PlatformClaudeCode:
		_, err := claudeStmt.ExecContext(ctx,
			e.EventID, e.ExternalSessionID, string(e.EventType), e.TimestampMs, e.UUID, e.ParentUUID,
			e.RequestID, e.AgentID, e.MessageRole, e.MessageModel, e.InputTokens,
			e.OutputTokens, e.CacheCreationInputTokens, e.CacheReadInputTokens,
			nil, e.CWD, e.GitBranch, e.UserType, blob,
		)
		if err != nil {
			return fmt.Errorf("store: insert claude trace %s: %w", e.EventID, err)
		}
	default:
		return fmt.Errorf("store: unknown platform %q for event %s", e.Platform, e.EventID)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBlob(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
