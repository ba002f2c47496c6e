package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/registry"
)

const upsertSessionSQL = `
INSERT INTO cursor_sessions (
	id, external_session_id, workspace_hash, workspace_path,
	started_at, ended_at, pid, metadata, last_seen
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(external_session_id) DO UPDATE SET
	workspace_hash = excluded.workspace_hash,
	workspace_path = excluded.workspace_path,
	started_at     = excluded.started_at,
	ended_at       = excluded.ended_at,
	pid            = excluded.pid,
	metadata       = excluded.metadata,
	last_seen      = excluded.last_seen
RETURNING id
`

// UpsertSession implements registry.Store. On conflict (an existing
// row with the same external_session_id) the original id is
// preserved — only the mutable columns are overwritten.
func (s *Store) UpsertSession(sess registry.Session) (string, error) {
	var id string
	err := s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		var endedAt interface{}
		if sess.EndedAt != nil {
			endedAt = sess.EndedAt.UnixMilli()
		}
		row := conn.QueryRowContext(ctx, upsertSessionSQL,
			sess.ID, sess.ExternalSessionID, sess.WorkspaceHash, sess.WorkspacePath,
			sess.StartedAt.UnixMilli(), endedAt, sess.PID, nullableBlob(sess.Metadata), sess.LastSeen.UnixMilli(),
		)
		return row.Scan(&id)
	})
	if err != nil {
		return "", fmt.Errorf("store: upsert session %s: %w", sess.ExternalSessionID, err)
	}
	return id, nil
}

const selectSessionColumns = `
	id, external_session_id, workspace_hash, workspace_path,
	started_at, ended_at, pid, metadata, last_seen
`

func scanSession(row *sql.Row) (*registry.Session, error) {
	var sess registry.Session
	var endedAt sql.NullInt64
	var metadata sql.NullString
	var startedAtMs, lastSeenMs int64

	if err := row.Scan(
		&sess.ID, &sess.ExternalSessionID, &sess.WorkspaceHash, &sess.WorkspacePath,
		&startedAtMs, &endedAt, &sess.PID, &metadata, &lastSeenMs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	sess.StartedAt = time.UnixMilli(startedAtMs).UTC()
	sess.LastSeen = time.UnixMilli(lastSeenMs).UTC()
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		sess.EndedAt = &t
	}
	if metadata.Valid {
		sess.Metadata = []byte(metadata.String)
	}
	return &sess, nil
}

// GetActiveByWorkspace implements registry.Store.
func (s *Store) GetActiveByWorkspace(workspaceHash string) (*registry.Session, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+selectSessionColumns+" FROM cursor_sessions WHERE workspace_hash = ? AND ended_at IS NULL",
		workspaceHash,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("store: get active session for workspace %s: %w", workspaceHash, err)
	}
	return sess, nil
}

// GetByExternalID implements registry.Store.
func (s *Store) GetByExternalID(externalSessionID string) (*registry.Session, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+selectSessionColumns+" FROM cursor_sessions WHERE external_session_id = ?",
		externalSessionID,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", externalSessionID, err)
	}
	return sess, nil
}

// CloseSession implements registry.Store.
func (s *Store) CloseSession(id string, endedAt time.Time) error {
	return s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			"UPDATE cursor_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL",
			endedAt.UnixMilli(), id,
		)
		return err
	})
}

// Heartbeat implements registry.Store.
func (s *Store) Heartbeat(externalSessionID string, lastSeen time.Time) error {
	return s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			"UPDATE cursor_sessions SET last_seen = ? WHERE external_session_id = ?",
			lastSeen.UnixMilli(), externalSessionID,
		)
		return err
	})
}

// ListActive implements registry.Store.
func (s *Store) ListActive() ([]registry.Session, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT "+selectSessionColumns+" FROM cursor_sessions WHERE ended_at IS NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("store: list active sessions: %w", err)
	}
	defer rows.Close()

	var out []registry.Session
	for rows.Next() {
		var sess registry.Session
		var endedAt sql.NullInt64
		var metadata sql.NullString
		var startedAtMs, lastSeenMs int64

		if err := rows.Scan(
			&sess.ID, &sess.ExternalSessionID, &sess.WorkspaceHash, &sess.WorkspacePath,
			&startedAtMs, &endedAt, &sess.PID, &metadata, &lastSeenMs,
		); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		sess.StartedAt = time.UnixMilli(startedAtMs).UTC()
		sess.LastSeen = time.UnixMilli(lastSeenMs).UTC()
		if endedAt.Valid {
			t := time.UnixMilli(endedAt.Int64).UTC()
			sess.EndedAt = &t
		}
		if metadata.Valid {
			sess.Metadata = []byte(metadata.String)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

var _ registry.Store = (*Store)(nil)
