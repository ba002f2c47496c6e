// Package store implements the unified store (C8): the single
// SQLite-backed writer for both Cursor and Claude raw traces,
// sessions, conversations, and offset/state bookkeeping. All writes
// go through one dedicated writer goroutine per DB file, guaranteeing
// the WAL-mode, single-writer discipline spec §4.8/§5 require; reads
// may use any pooled connection concurrently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	_ "modernc.org/sqlite"
)

// writeTask is one unit of work submitted to the writer goroutine.
type writeTask struct {
	fn   func(ctx context.Context, conn *sql.Conn) error
	done chan error
}

// Store is the unified store's handle on one telemetry.db file.
type Store struct {
	db       *sql.DB
	writeConn *sql.Conn
	writeCh  chan writeTask
	stopCh   chan struct{}
	stoppedCh chan struct{}
	logger   *events.EventLogger
}

// Open opens (creating if necessary) the SQLite database at path with
// the mandatory pragmas from spec §4.8 (WAL, synchronous=NORMAL,
// busy_timeout=5000ms, foreign_keys=ON), runs schema migrations, and
// starts the writer goroutine.
func Open(path string, logger *events.EventLogger) (*Store, error) {
	if logger == nil {
		logger = events.NewEventLogger("store")
	}

	dsn := fmt.Sprintf(
		"%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	writeConn, err := db.Conn(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: acquire write connection: %w", err)
	}

	s := &Store{
		db:        db,
		writeConn: writeConn,
		writeCh:   make(chan writeTask),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		logger:    logger,
	}
	go s.runWriter()
	return s, nil
}

// Close stops the writer goroutine and closes the underlying database.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.stoppedCh
	s.writeConn.Close()
	return s.db.Close()
}

func (s *Store) runWriter() {
	defer close(s.stoppedCh)
	for {
		select {
		case task := <-s.writeCh:
			task.done <- task.fn(context.Background(), s.writeConn)
		case <-s.stopCh:
			return
		}
	}
}

// write submits fn to the writer goroutine and blocks for its result.
// fn is responsible for its own BEGIN IMMEDIATE / COMMIT / ROLLBACK.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	task := writeTask{fn: fn, done: make(chan error, 1)}
	select {
	case s.writeCh <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return fmt.Errorf("store: writer stopped")
	}

	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inTransaction runs body between BEGIN IMMEDIATE and COMMIT on conn,
// rolling back on any error (spec §4.8: "batch commits use explicit
// BEGIN IMMEDIATE...COMMIT").
func inTransaction(ctx context.Context, conn *sql.Conn, body func(ctx context.Context, conn *sql.Conn) error) error {
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("store: begin immediate: %w", err)
	}
	if err := body(ctx, conn); err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			return fmt.Errorf("store: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// DB exposes the underlying *sql.DB for read-only queries from other
// packages (health, analytics) that don't need write serialization.
func (s *Store) DB() *sql.DB {
	return s.db
}
