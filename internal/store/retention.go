package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/retention"
)

// Checkpoint runs a passive WAL checkpoint to bound WAL file growth,
// implementing retention.Store.
func (s *Store) Checkpoint() error {
	_, err := s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(PASSIVE)")
	if err != nil {
		return fmt.Errorf("store: wal checkpoint: %w", err)
	}
	return nil
}

// PruneStaleOffsetRows deletes claude_jsonl_offsets rows that have
// not been touched in over maxAge, implementing retention.Store. A
// stale offset row belongs to a JSONL file the tail-reader has not
// observed in a long time — most likely an archived project whose
// session ended without a Stop hook firing.
func (s *Store) PruneStaleOffsetRows(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).UnixMilli()

	var affected int64
	err := s.write(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, "DELETE FROM claude_jsonl_offsets WHERE updated_at < ?", cutoff)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: prune stale offset rows: %w", err)
	}
	return int(affected), nil
}

var _ retention.Store = (*Store)(nil)
