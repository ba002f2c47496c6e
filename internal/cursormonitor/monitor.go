package cursormonitor

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/ingress"
	"github.com/blueplane-ai/bp-telemetry-core/internal/registry"
)

// Config controls Monitor's poll cadence (spec §4.4's default 30s
// interval).
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns the spec's literal 30s poll interval.
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second}
}

// Monitor polls every workspace the registry considers active,
// diffing Cursor's own state.vscdb files against persisted watermarks
// and relaying newly observed records as canonical events (spec §4.4).
// It follows the teacher's ticker-driven Start/Stop goroutine
// discipline, also used by registry.Sweeper and retention.Manager.
type Monitor struct {
	cfg      Config
	registry *registry.Registry
	dedup    DedupStore
	relay    *ingress.Relay
	logger   *events.EventLogger

	userDir string

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a Monitor. logger defaults to events.NewEventLogger("cursormonitor") when nil.
func New(cfg Config, reg *registry.Registry, dedup DedupStore, relay *ingress.Relay, logger *events.EventLogger) *Monitor {
	if logger == nil {
		logger = events.NewEventLogger("cursormonitor")
	}
	return &Monitor{cfg: cfg, registry: reg, dedup: dedup, relay: relay, logger: logger}
}

// Start begins the polling loop in a background goroutine. It is a
// no-op if already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.stoppedCh = make(chan struct{})
	go m.run()
}

// Stop signals the polling loop to exit and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	running := m.running
	stopCh := m.stopCh
	stoppedCh := m.stoppedCh
	m.mu.Unlock()

	if !running {
		return
	}
	close(stopCh)
	<-stoppedCh

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Monitor) run() {
	defer close(m.stoppedCh)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Poll(context.Background())
		}
	}
}

// Poll runs one cycle: resolve active workspaces, open the shared
// global store once, then poll each workspace's own store in
// isolation so one corrupt or locked database never stops the others.
func (m *Monitor) Poll(ctx context.Context) {
	if m.userDir == "" {
		m.userDir = UserDir()
	}
	if m.userDir == "" {
		return // Cursor not installed, or no data yet.
	}

	workspaces, err := m.registry.ActiveWorkspaces()
	if err != nil {
		m.logger.LogPollError("cursormonitor.active_workspaces", 1, err)
		return
	}
	if len(workspaces) == 0 {
		return
	}

	var globalDB *sql.DB
	if db, err := openReadOnly(GlobalStoragePath(m.userDir)); err != nil {
		m.logger.LogPollError("cursormonitor.global_storage", 1, err)
	} else {
		globalDB = db
		defer globalDB.Close()
	}

	for _, ws := range workspaces {
		m.pollWorkspace(ctx, ws, globalDB)
	}
}

func (m *Monitor) pollWorkspace(ctx context.Context, ws registry.ActiveWorkspace, globalDB *sql.DB) {
	db, err := openReadOnly(WorkspaceStoragePath(m.userDir, ws.WorkspaceHash))
	if err != nil {
		m.logger.LogPollError("cursormonitor.workspace_storage:"+ws.WorkspaceHash, 1, err)
		return
	}
	defer db.Close()

	emit := func(eventType string, payload map[string]interface{}, timestampMs int64, scalars map[string]interface{}) {
		if _, err := m.relay.Emit(ctx, "cursor", ws.SessionID, eventType, payload, timestampMs, ws.WorkspaceHash, scalars); err != nil {
			m.logger.LogPollError("cursormonitor.emit:"+ws.WorkspaceHash, 1, err)
		}
	}

	m.pollGenerations(db, ws.WorkspaceHash, emit)
	composerIDs := m.pollComposerData(db, ws.WorkspaceHash, emit)
	m.pollComposerBubbles(globalDB, ws.WorkspaceHash, composerIDs, emit)
	m.pollBackgroundComposer(db, ws.WorkspaceHash, emit)
	m.pollHistoryEntries(db, ws.WorkspaceHash, emit)
}
