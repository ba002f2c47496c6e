// Package retention provides periodic compaction of the unified store:
// a WAL checkpoint plus pruning of claude_jsonl_offsets rows that have
// not been updated for longer than a TTL. Not named in
// spec.md's text, but implied by C9's delete_for_session plus the need
// for a long-running daemon not to grow its WAL unbounded.
package retention

// Config holds retention policy configuration.
type Config struct {
	// OffsetRowsTTLHours is how long, in hours, a claude_jsonl_offsets
	// row may go without an update before it is pruned; whether its
	// session has ended is not checked. Default: 168 (7 days).
	OffsetRowsTTLHours int

	// CleanupIntervalHours is the interval between cleanup runs in hours.
	// Default: 24 (once per day).
	CleanupIntervalHours int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		OffsetRowsTTLHours:   168, // 7 days
		CleanupIntervalHours: 24,  // once per day
	}
}

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.OffsetRowsTTLHours <= 0 {
		result.OffsetRowsTTLHours = 168
	}
	if result.CleanupIntervalHours <= 0 {
		result.CleanupIntervalHours = 24
	}
	return result
}
