package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FileState is one claude_jsonl_offsets row (spec §3/§4.9): C5's
// durable read cursor into one JSONL file.
type FileState struct {
	FilePath     string
	SessionID    string
	AgentID      string
	LineOffset   int64
	LastSize     int64
	LastMTime    int64
	LastReadTime time.Time
}

// GetFileState returns the persisted offset for filePath, or nil if
// none exists yet.
func (s *Store) GetFileState(filePath string) (*FileState, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT file_path, session_id, agent_id, line_offset, last_size, last_mtime, last_read_time
		 FROM claude_jsonl_offsets WHERE file_path = ?`,
		filePath,
	)

	var fs FileState
	var sessionID, agentID sql.NullString
	var lastReadMs int64
	if err := row.Scan(&fs.FilePath, &sessionID, &agentID, &fs.LineOffset, &fs.LastSize, &fs.LastMTime, &lastReadMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get file state for %s: %w", filePath, err)
	}
	fs.SessionID = sessionID.String
	fs.AgentID = agentID.String
	fs.LastReadTime = time.UnixMilli(lastReadMs).UTC()
	return &fs, nil
}

// UpsertFileState writes state as a single atomic upsert (spec §4.9).
func (s *Store) UpsertFileState(state FileState) error {
	return s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO claude_jsonl_offsets (
				file_path, session_id, agent_id, line_offset, last_size, last_mtime, last_read_time, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_path) DO UPDATE SET
				session_id     = excluded.session_id,
				agent_id       = excluded.agent_id,
				line_offset    = excluded.line_offset,
				last_size      = excluded.last_size,
				last_mtime     = excluded.last_mtime,
				last_read_time = excluded.last_read_time,
				updated_at     = excluded.updated_at
			`,
			state.FilePath, nullableString(state.SessionID), nullableString(state.AgentID),
			state.LineOffset, state.LastSize, state.LastMTime, state.LastReadTime.UnixMilli(), time.Now().UTC().UnixMilli(),
		)
		return err
	})
}

// DeleteForSession removes every claude_jsonl_offsets row owned by
// sessionID, called on a Claude Stop hook / session-end (spec §4.5).
func (s *Store) DeleteForSession(sessionID string) error {
	return s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, "DELETE FROM claude_jsonl_offsets WHERE session_id = ?", sessionID)
		return err
	})
}

// GetLastSequence returns analytics_processing_state.last_processed_sequence
// for platform, defaulting to 0 if no row exists yet.
func (s *Store) GetLastSequence(platform string) (int64, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT last_processed_sequence FROM analytics_processing_state WHERE platform = ?",
		platform,
	)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: get last sequence for %s: %w", platform, err)
	}
	return seq, nil
}

// SetLastSequence upserts analytics_processing_state for platform.
func (s *Store) SetLastSequence(platform string, seq int64) error {
	return s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		now := time.Now().UTC().UnixMilli()
		_, err := conn.ExecContext(ctx, `
			INSERT INTO analytics_processing_state (platform, last_processed_sequence, last_processed_timestamp, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(platform) DO UPDATE SET
				last_processed_sequence  = excluded.last_processed_sequence,
				last_processed_timestamp = excluded.last_processed_timestamp,
				updated_at               = excluded.updated_at
			`,
			platform, seq, now, now,
		)
		return err
	})
}
