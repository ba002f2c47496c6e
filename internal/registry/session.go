// Package registry implements the session and workspace registry
// (C6): it tracks one active Cursor IDE session per workspace, gives
// C4 the (workspace_hash, workspace_path) pairs to poll, and runs a
// background sweeper that force-closes sessions belonging to dead
// processes (spec §4.6).
package registry

import "time"

// Session is one row of the cursor_sessions table, mirrored here so
// the registry can reason about session lifecycle without depending
// on the store package directly.
type Session struct {
	ID                string
	ExternalSessionID string
	WorkspaceHash     string
	WorkspacePath     string
	StartedAt         time.Time
	EndedAt           *time.Time
	PID               int
	Metadata          []byte
	LastSeen          time.Time
}

// Active reports whether the session has not yet ended.
func (s Session) Active() bool {
	return s.EndedAt == nil
}

// Store is the persistence interface the registry needs from the
// unified store (C8). A narrow interface by design, mirroring how the
// teacher's scheduler package depends only on the Registry/LeaseManager
// methods it actually calls.
type Store interface {
	// UpsertSession inserts or updates a session row keyed by
	// ExternalSessionID, returning the (possibly newly assigned) ID.
	UpsertSession(s Session) (string, error)

	// GetActiveByWorkspace returns the session with EndedAt == nil for
	// workspaceHash, if any.
	GetActiveByWorkspace(workspaceHash string) (*Session, error)

	// GetByExternalID returns the session for externalSessionID, if any.
	GetByExternalID(externalSessionID string) (*Session, error)

	// CloseSession sets EndedAt = endedAt for the session with id.
	CloseSession(id string, endedAt time.Time) error

	// Heartbeat refreshes LastSeen for the session with externalSessionID.
	Heartbeat(externalSessionID string, lastSeen time.Time) error

	// ListActive returns every session with EndedAt == nil.
	ListActive() ([]Session, error)
}
