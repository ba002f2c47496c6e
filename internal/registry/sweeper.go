package registry

import (
	"sync"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
)

// PIDLiveness reports whether pid is currently a live OS process. The
// real implementation (cmd/telemetryd) backs this with
// gopsutil/v3/process.PidExists.
type PIDLiveness func(pid int) (bool, error)

// Sweeper periodically force-closes sessions whose owning process has
// died (spec §4.6): every interval, any active session whose pid is
// no longer live and whose last_seen exceeds staleAfter is closed
// with reason "stale_pid".
type Sweeper struct {
	registry   *Registry
	pidAlive   PIDLiveness
	interval   time.Duration
	staleAfter time.Duration
	logger     *events.EventLogger
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewSweeper builds a Sweeper over registry. If pidAlive is nil, every
// pid is treated as alive (the sweeper becomes a no-op) — callers
// should always supply a real liveness check in production.
func NewSweeper(registry *Registry, pidAlive PIDLiveness, interval, staleAfter time.Duration, logger *events.EventLogger) *Sweeper {
	if logger == nil {
		logger = events.NewEventLogger("registry")
	}
	if pidAlive == nil {
		pidAlive = func(int) (bool, error) { return true, nil }
	}
	return &Sweeper{
		registry:   registry,
		pidAlive:   pidAlive,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Start begins the sweep loop in a background goroutine. Safe to call
// multiple times; subsequent calls while running are no-ops.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

// Stop halts the sweep loop and blocks until it has exited. Safe to
// call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	stopped := s.stoppedCh
	s.mu.Unlock()

	<-stopped
}

func (s *Sweeper) run() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one sweep cycle immediately (exported for tests and for
// an initial sweep at startup).
func (s *Sweeper) Sweep() {
	sessions, err := s.registry.store.ListActive()
	if err != nil {
		s.logger.LogPollError("registry.sweep", 1, err)
		return
	}

	cutoff := s.now().UTC().Add(-s.staleAfter)
	for _, sess := range sessions {
		if sess.LastSeen.After(cutoff) {
			continue
		}
		alive, err := s.pidAlive(sess.PID)
		if err != nil {
			s.logger.LogPollError("registry.sweep.pid_check", 1, err)
			continue
		}
		if alive {
			continue
		}
		if err := s.registry.store.CloseSession(sess.ID, s.now().UTC()); err != nil {
			s.logger.LogPollError("registry.sweep.close", 1, err)
			continue
		}
		s.logger.LogSessionSweep(sess.ID, sess.ExternalSessionID, "stale_pid")
	}
}
