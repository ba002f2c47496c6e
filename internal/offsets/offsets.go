// Package offsets implements C9: a thin wrapper over the unified
// store's offset and processing-state columns, giving C5 (claudetail)
// and the analytics-adjacent health reporting a narrow, storage-
// agnostic interface instead of depending on store.Store directly.
package offsets

import (
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/store"
)

// FileState is re-exported from store so callers of this package
// never need to import internal/store directly.
type FileState = store.FileState

// Backend is the subset of store.Store this package wraps.
type Backend interface {
	GetFileState(filePath string) (*FileState, error)
	UpsertFileState(state FileState) error
	DeleteForSession(sessionID string) error
	GetLastSequence(platform string) (int64, error)
	SetLastSequence(platform string, seq int64) error
}

// Offsets provides the C9 operations named in spec §4.9.
type Offsets struct {
	backend Backend
}

// New builds an Offsets wrapper over backend (typically a *store.Store).
func New(backend Backend) *Offsets {
	return &Offsets{backend: backend}
}

// GetFileState returns the persisted offset for filePath, or nil if
// this file has never been read.
func (o *Offsets) GetFileState(filePath string) (*FileState, error) {
	return o.backend.GetFileState(filePath)
}

// UpsertFileState persists state as a single atomic upsert.
func (o *Offsets) UpsertFileState(state FileState) error {
	return o.backend.UpsertFileState(state)
}

// DeleteForSession bulk-removes every offset row owned by sessionID,
// called when C5 observes a Claude Stop hook / session end.
func (o *Offsets) DeleteForSession(sessionID string) error {
	return o.backend.DeleteForSession(sessionID)
}

// GetLastSequence returns the last sequence number the analytics
// layer has processed for platform.
func (o *Offsets) GetLastSequence(platform string) (int64, error) {
	return o.backend.GetLastSequence(platform)
}

// SetLastSequence records the last sequence number processed for
// platform.
func (o *Offsets) SetLastSequence(platform string, seq int64) error {
	return o.backend.SetLastSequence(platform, seq)
}

// NewFileState builds a FileState, stamping LastReadTime to now.
func NewFileState(filePath, sessionID, agentID string, lineOffset, lastSize, lastMtime int64) FileState {
	return FileState{
		FilePath:     filePath,
		SessionID:    sessionID,
		AgentID:      agentID,
		LineOffset:   lineOffset,
		LastSize:     lastSize,
		LastMTime:    lastMtime,
		LastReadTime: time.Now().UTC(),
	}
}
