package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DedupState is one cursor_dedup_state row: C4's per-source-key
// watermark, persisted so change detection survives a restart
// (spec §4.4/§4.9).
type DedupState struct {
	WorkspaceHash  string
	SourceKey      string
	LastSeenUnixMs int64
	LastHash       string
}

// GetDedupState returns the persisted watermark for
// (workspaceHash, sourceKey), or the zero value if none exists yet.
func (s *Store) GetDedupState(workspaceHash, sourceKey string) (DedupState, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT last_seen_unix_ms, last_hash FROM cursor_dedup_state WHERE workspace_hash = ? AND source_key = ?",
		workspaceHash, sourceKey,
	)

	state := DedupState{WorkspaceHash: workspaceHash, SourceKey: sourceKey}
	var lastHash sql.NullString
	if err := row.Scan(&state.LastSeenUnixMs, &lastHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, nil
		}
		return state, fmt.Errorf("store: get dedup state %s/%s: %w", workspaceHash, sourceKey, err)
	}
	state.LastHash = lastHash.String
	return state, nil
}

// UpsertDedupState persists state as a single atomic upsert.
func (s *Store) UpsertDedupState(state DedupState) error {
	return s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO cursor_dedup_state (workspace_hash, source_key, last_seen_unix_ms, last_hash)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(workspace_hash, source_key) DO UPDATE SET
				last_seen_unix_ms = excluded.last_seen_unix_ms,
				last_hash         = excluded.last_hash
			`,
			state.WorkspaceHash, state.SourceKey, state.LastSeenUnixMs, nullableString(state.LastHash),
		)
		return err
	})
}
