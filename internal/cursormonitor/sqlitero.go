// Package cursormonitor implements C4: a polling reader over Cursor's
// own SQLite state databases (workspaceStorage/<hash>/state.vscdb and
// the global state.vscdb), opened read-only, diffed against a
// persisted watermark, and relayed into C3/C2 as canonical events
// (spec §4.4). Grounded on the `?mode=ro` read-only open idiom in
// other_examples/d1529d54_philmade-gather-infra…middleware.go, adapted
// onto a retrying opener since this reader runs unattended.
package cursormonitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	openInitialBackoff = 100 * time.Millisecond
	openMaxBackoff      = 1600 * time.Millisecond
	openMaxAttempts     = 3
)

// openReadOnly opens path read-only, retrying a locked database with
// capped exponential backoff (100ms → 1.6s) up to 3 attempts before
// giving up for this poll cycle (spec §4.4).
func openReadOnly(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?mode=ro&_pragma=busy_timeout(1000)", path)

	var lastErr error
	backoff := openInitialBackoff
	for attempt := 1; attempt <= openMaxAttempts; attempt++ {
		db, err := sql.Open("sqlite", dsn)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			pingErr := db.PingContext(pingCtx)
			cancel()
			if pingErr == nil {
				return db, nil
			}
			lastErr = pingErr
			db.Close()
		} else {
			lastErr = err
		}

		if attempt < openMaxAttempts {
			time.Sleep(backoff)
			backoff *= 4
			if backoff > openMaxBackoff {
				backoff = openMaxBackoff
			}
		}
	}
	return nil, fmt.Errorf("cursormonitor: open %s read-only after %d attempts: %w", path, openMaxAttempts, lastErr)
}
