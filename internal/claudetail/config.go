// Package claudetail implements C5: a tailing reader for Claude Code's
// append-only JSONL transcripts, classifying each record into a
// canonical event and handing it to C3/C2, with a durable per-file
// read cursor persisted through C9 (spec §4.5). Grounded on the
// teacher's buffered, line-addressed emitter discipline in
// internal/telemetry — reworked here onto a read side instead of a
// write side.
package claudetail

import (
	"os"
	"path/filepath"
	"time"
)

// Config controls where the reader looks for transcripts and how
// often it polls.
type Config struct {
	// ProjectsDir is the Claude projects root, default
	// ~/.claude/projects, containing one subdirectory per encoded
	// project path, each holding <session-uuid>.jsonl files (spec §4.5/§6).
	ProjectsDir string
	// PollInterval is the time between tail cycles. Default 2s (spec §4.5).
	PollInterval time.Duration
}

// DefaultConfig returns the Config described in spec §4.5/§6.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		ProjectsDir:  filepath.Join(home, ".claude", "projects"),
		PollInterval: 2 * time.Second,
	}
}
