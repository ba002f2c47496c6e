package config

import "time"

// Default configuration constants for the registry's stale-session
// sweep (C6, spec §4.6).
const (
	// DefaultSessionStaleMs is the "last_seen" staleness threshold the
	// sweeper requires, in addition to a dead PID, before force
	// closing a session (spec §4.6: 5 minutes).
	DefaultSessionStaleMs = 300000

	// DefaultSessionSweepIntervalMs is how often the sweeper runs.
	DefaultSessionSweepIntervalMs = 60000
)

// DefaultSessionStale is DefaultSessionStaleMs as a time.Duration.
func DefaultSessionStale() time.Duration {
	return time.Duration(DefaultSessionStaleMs) * time.Millisecond
}

// DefaultSessionSweepInterval is DefaultSessionSweepIntervalMs as a time.Duration.
func DefaultSessionSweepInterval() time.Duration {
	return time.Duration(DefaultSessionSweepIntervalMs) * time.Millisecond
}
