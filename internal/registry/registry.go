package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Registry coordinates session lifecycle against a Store, enforcing
// the at-most-one-active-session-per-workspace invariant (spec §4.6).
type Registry struct {
	store Store
	now   func() time.Time
}

// New builds a Registry backed by store. now defaults to time.Now.
func New(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// SessionStart upserts a cursor_sessions row for externalSessionID. If
// another session is already active for workspaceHash, it is closed
// first (ended_at set to this session's start time), per the
// session-lifecycle invariant: at most one active session per
// workspace_hash, older session closed on conflict.
func (r *Registry) SessionStart(externalSessionID, workspaceHash, workspacePath string, pid int, metadata []byte) (string, error) {
	startedAt := r.now().UTC()

	existing, err := r.store.GetActiveByWorkspace(workspaceHash)
	if err != nil {
		return "", fmt.Errorf("registry: check active session for workspace %s: %w", workspaceHash, err)
	}
	if existing != nil && existing.ExternalSessionID != externalSessionID {
		if err := r.store.CloseSession(existing.ID, startedAt); err != nil {
			return "", fmt.Errorf("registry: close conflicting session %s: %w", existing.ID, err)
		}
	}

	s := Session{
		ID:                uuid.NewString(),
		ExternalSessionID: externalSessionID,
		WorkspaceHash:     workspaceHash,
		WorkspacePath:     workspacePath,
		StartedAt:         startedAt,
		PID:               pid,
		Metadata:          metadata,
		LastSeen:          startedAt,
	}

	id, err := r.store.UpsertSession(s)
	if err != nil {
		return "", fmt.Errorf("registry: upsert session %s: %w", externalSessionID, err)
	}
	return id, nil
}

// SessionEnd sets ended_at = now for externalSessionID.
func (r *Registry) SessionEnd(externalSessionID string) error {
	s, err := r.store.GetByExternalID(externalSessionID)
	if err != nil {
		return fmt.Errorf("registry: lookup session %s: %w", externalSessionID, err)
	}
	if s == nil || !s.Active() {
		return nil
	}
	return r.store.CloseSession(s.ID, r.now().UTC())
}

// Heartbeat refreshes last_seen for externalSessionID.
func (r *Registry) Heartbeat(externalSessionID string) error {
	return r.store.Heartbeat(externalSessionID, r.now().UTC())
}

// ActiveWorkspace is one (workspace_hash, workspace_path) pair C4
// should poll, with the ID of the active session it belongs to.
type ActiveWorkspace struct {
	WorkspaceHash string
	WorkspacePath string
	SessionID     string
}

// ActiveWorkspaces lists the workspaces with a currently active
// session, for C4 to enumerate as polling targets.
func (r *Registry) ActiveWorkspaces() ([]ActiveWorkspace, error) {
	sessions, err := r.store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("registry: list active sessions: %w", err)
	}
	out := make([]ActiveWorkspace, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ActiveWorkspace{
			WorkspaceHash: s.WorkspaceHash,
			WorkspacePath: s.WorkspacePath,
			SessionID:     s.ID,
		})
	}
	return out, nil
}
