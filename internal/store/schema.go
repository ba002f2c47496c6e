package store

// schema holds every CREATE TABLE/INDEX statement for the unified
// store (C8, spec §4.8). Statements are idempotent (IF NOT EXISTS) so
// Open can run them unconditionally on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS cursor_sessions (
	id                  TEXT PRIMARY KEY,
	external_session_id TEXT UNIQUE NOT NULL,
	workspace_hash      TEXT NOT NULL,
	workspace_path      TEXT NOT NULL,
	started_at          INTEGER NOT NULL,
	ended_at            INTEGER,
	pid                 INTEGER NOT NULL,
	metadata            TEXT,
	last_seen           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cursor_sessions_workspace_active
	ON cursor_sessions(workspace_hash)
	WHERE ended_at IS NULL;

CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	session_id    TEXT REFERENCES cursor_sessions(id),
	external_id   TEXT NOT NULL,
	platform      TEXT NOT NULL CHECK (platform IN ('cursor', 'claude_code')),
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER,
	message_count INTEGER NOT NULL DEFAULT 0,
	CHECK (
		(platform = 'cursor' AND session_id IS NOT NULL) OR
		(platform = 'claude_code' AND session_id IS NULL)
	),
	UNIQUE(external_id, platform)
);

CREATE TABLE IF NOT EXISTS cursor_raw_traces (
	sequence              INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id              TEXT UNIQUE NOT NULL,
	external_session_id   TEXT NOT NULL,
	workspace_hash        TEXT,
	event_type            TEXT NOT NULL,
	timestamp             INTEGER NOT NULL,
	event_date            TEXT NOT NULL,
	event_hour            INTEGER NOT NULL,
	composer_id           TEXT,
	bubble_id             TEXT,
	generation_uuid       TEXT,
	lines_added           INTEGER,
	lines_removed         INTEGER,
	token_count_up_until_here INTEGER,
	relevant_files        TEXT,
	capabilities_ran      TEXT,
	capability_statuses   TEXT,
	event_data            BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cursor_raw_traces_timestamp ON cursor_raw_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_cursor_raw_traces_session ON cursor_raw_traces(external_session_id);
CREATE INDEX IF NOT EXISTS idx_cursor_raw_traces_composer ON cursor_raw_traces(composer_id);

CREATE TABLE IF NOT EXISTS claude_raw_traces (
	sequence                     INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id                     TEXT UNIQUE NOT NULL,
	external_session_id          TEXT NOT NULL,
	event_type                   TEXT NOT NULL,
	timestamp                    INTEGER NOT NULL,
	uuid                         TEXT,
	parent_uuid                  TEXT,
	request_id                   TEXT,
	agent_id                     TEXT,
	message_role                 TEXT,
	message_model                TEXT,
	input_tokens                 INTEGER,
	output_tokens                INTEGER,
	cache_creation_input_tokens  INTEGER,
	cache_read_input_tokens      INTEGER,
	tokens_used                  INTEGER,
	cwd                          TEXT,
	git_branch                   TEXT,
	user_type                    TEXT,
	event_data                   BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claude_raw_traces_timestamp ON claude_raw_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_claude_raw_traces_session ON claude_raw_traces(external_session_id);
CREATE INDEX IF NOT EXISTS idx_claude_raw_traces_uuid ON claude_raw_traces(uuid);

CREATE TABLE IF NOT EXISTS claude_jsonl_offsets (
	file_path      TEXT PRIMARY KEY,
	session_id     TEXT,
	agent_id       TEXT,
	line_offset    INTEGER NOT NULL,
	last_size      INTEGER NOT NULL,
	last_mtime     INTEGER NOT NULL,
	last_read_time INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics_processing_state (
	platform              TEXT PRIMARY KEY,
	last_processed_sequence  INTEGER NOT NULL DEFAULT 0,
	last_processed_timestamp INTEGER,
	updated_at               INTEGER NOT NULL
);

-- cursor_dedup_state persists the per-source-key dedup watermark C4
-- needs to survive restarts (spec §4.4: "dedup sets are persisted via
-- C9 as {workspace_hash, source_key, last_seen_unix_ms, last_hash}").
CREATE TABLE IF NOT EXISTS cursor_dedup_state (
	workspace_hash     TEXT NOT NULL,
	source_key         TEXT NOT NULL,
	last_seen_unix_ms  INTEGER NOT NULL DEFAULT 0,
	last_hash          TEXT,
	PRIMARY KEY (workspace_hash, source_key)
);
`
