package claudetail

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/errkind"
	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/ingress"
	"github.com/blueplane-ai/bp-telemetry-core/internal/offsets"
)

// Reader tails every JSONL transcript under Config.ProjectsDir,
// classifying and enqueuing new complete lines through the ingress
// relay and persisting its read cursor through C9 (spec §4.5).
type Reader struct {
	cfg     Config
	offsets *offsets.Offsets
	relay   *ingress.Relay
	logger  *events.EventLogger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a Reader. logger defaults to a "claudetail"-scoped EventLogger.
func New(cfg Config, off *offsets.Offsets, relay *ingress.Relay, logger *events.EventLogger) *Reader {
	if logger == nil {
		logger = events.NewEventLogger("claudetail")
	}
	return &Reader{cfg: cfg, offsets: off, relay: relay, logger: logger}
}

// Start begins the polling loop in a background goroutine. No-op if
// already running (mirrors the teacher's HeartbeatMonitor Start/Stop shape).
func (r *Reader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.stoppedCh = make(chan struct{})
	go r.run()
}

// Stop signals the polling loop to exit and waits for it to do so.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh := r.stopCh
	stoppedCh := r.stoppedCh
	r.mu.Unlock()

	close(stopCh)
	<-stoppedCh
}

func (r *Reader) run() {
	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	trigger := make(chan struct{}, 1)
	watcher, err := r.startWatcher(trigger)
	if err != nil {
		r.logger.LogPollError("claudetail.watch", 1, err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Poll(context.Background())
		case <-trigger:
			r.Poll(context.Background())
		}
	}
}

// Poll runs one tail cycle over every discovered file. Per-file
// failures are isolated: one unreadable transcript never stops
// others from being processed (spec §4.5).
func (r *Reader) Poll(ctx context.Context) {
	files, err := r.discoverFiles()
	if err != nil {
		r.logger.LogPollError("claudetail.discover", 1, err)
		return
	}
	for _, path := range files {
		if err := r.processFile(ctx, path); err != nil {
			r.logger.LogPollError("claudetail.file:"+path, 1, err)
		}
	}
}

// discoverFiles walks ProjectsDir for *.jsonl transcripts.
func (r *Reader) discoverFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(r.cfg.ProjectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".jsonl") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errkind.NewTransientIOError("walk projects dir", err)
	}
	return out, nil
}

// sessionIDFromPath derives the external_session_id from a transcript
// path laid out as <project>/<session-uuid>.jsonl (spec §6).
func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// processFile runs one tail cycle for a single transcript: detect
// truncation/staleness, read newly-complete lines, classify and
// enqueue them, then persist the advanced FileState in one upsert
// (spec §4.5 steps 2-5).
func (r *Reader) processFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errkind.NewTransientIOError("stat "+path, err)
	}
	size := info.Size()
	mtime := info.ModTime().UnixMilli()

	state, err := r.offsets.GetFileState(path)
	if err != nil {
		return errkind.NewTransientIOError("get file state", err)
	}

	var lineOffset, lastSize, lastMTime int64
	sessionID := sessionIDFromPath(path)
	if state != nil {
		lineOffset = state.LineOffset
		lastSize = state.LastSize
		lastMTime = state.LastMTime
		if state.SessionID != "" {
			sessionID = state.SessionID
		}
	}

	if size < lastSize {
		r.logger.LogTruncation(path, lastSize, size)
		lineOffset = 0
	} else if size == lastSize && mtime == lastMTime {
		return nil // unchanged
	}

	f, err := os.Open(path)
	if err != nil {
		return errkind.NewTransientIOError("open "+path, err)
	}
	defer f.Close()

	newOffset, lines, err := readNewLines(f, lineOffset, r.logger, path)
	if err != nil {
		return err
	}

	for _, rl := range lines {
		cr := classify(rl.record)
		// event_id is derived from file_path + the line's own raw bytes,
		// not the record's own "uuid" (many record types, e.g.
		// queue-operation/summary entries, don't carry one) and not a
		// fresh uuid.NewString() per emit. This is what makes a
		// truncation replay (lineOffset reset to 0, spec S8) idempotent:
		// re-emitting an unchanged line produces the same event_id, so
		// C8's ON CONFLICT(event_id) DO NOTHING absorbs the duplicate
		// instead of inserting a second claude_raw_traces row.
		cr.scalars["event_id"] = contentEventID(path, rl.content)
		if _, emitErr := r.relay.Emit(ctx, "claude_code", sessionID, cr.eventType, cr.payload, cr.timestampMs, "", cr.scalars); emitErr != nil {
			r.logger.LogPollError("claudetail.emit", 1, emitErr)
			return emitErr // leave FileState untouched; retry from lineOffset next cycle
		}
	}

	return r.offsets.UpsertFileState(offsets.FileState{
		FilePath:     path,
		SessionID:    sessionID,
		LineOffset:   newOffset,
		LastSize:     size,
		LastMTime:    mtime,
		LastReadTime: time.Now().UTC(),
	})
}

// rawLine pairs a decoded JSONL record with the exact trimmed line
// bytes it came from, so callers can derive a content-addressed
// event_id instead of trusting the record to carry its own identity.
type rawLine struct {
	record  map[string]interface{}
	content string
}

// readNewLines reads complete lines from f starting after skip
// already-processed lines, returning the advanced line offset and the
// decoded lines. A malformed line is logged and skipped but still
// advances the offset (lines are line-addressed, spec §4.5). A
// trailing line with no terminating newline is left unconsumed.
func readNewLines(f *os.File, skip int64, logger *events.EventLogger, path string) (int64, []rawLine, error) {
	br := bufio.NewReader(f)

	var skipped int64
	for skipped < skip {
		if _, err := br.ReadString('\n'); err != nil {
			break // file has fewer lines than expected; stop skipping, nothing new to read
		}
		skipped++
	}

	offset := skipped
	var lines []rawLine
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			break // partial trailing bytes; leave for next cycle
		}
		if err != nil {
			return offset, lines, errkind.NewTransientIOError("read "+path, err)
		}
		offset++

		trimmed := strings.TrimRight(line, "\n")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}

		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
			logger.LogMalformedLine(path, int(offset), err)
			continue
		}
		lines = append(lines, rawLine{record: rec, content: trimmed})
	}

	return offset, lines, nil
}

// contentEventID derives a stable event_id from path and a line's raw
// content, so the same line re-read after a truncation (lineOffset
// reset to 0, spec S8) always produces the same id regardless of
// whether the record itself carries a "uuid" field.
func contentEventID(path, content string) string {
	sum := sha256.Sum256([]byte(path + "\x00" + content))
	return hex.EncodeToString(sum[:])
}
