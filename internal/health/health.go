// Package health exposes the pipeline's own operational counters
// (spec §7: events_in, events_out, events_to_dlq, consumer_lag,
// poll_errors) as a small JSON /health endpoint. Grounded on the
// teacher's internal/metrics/prometheus.go Collector — same
// mutex-guarded counter-map shape, re-themed to this spec's counters
// and exposed as JSON rather than Prometheus text exposition, since
// the spec names a single /health endpoint, not a scrape target.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/otel"
)

// Collector accumulates the pipeline's health counters. Safe for
// concurrent use; callers call its methods directly rather than going
// through a channel. In this repository only cmd/consumerd's lag
// reporter feeds it (SetConsumerLag, RecordPollError); cmd/telemetryd
// serves a Collector that none of its components records into.
type Collector struct {
	mu sync.RWMutex

	eventsIn      map[string]int64 // platform -> count
	eventsOut     map[string]int64
	eventsToDLQ   int64
	pollErrors    int64
	consumerLag   int64
	lastUpdatedAt time.Time

	metrics *otel.Metrics // optional OTel mirror; nil means JSON-only
}

// NewCollector builds an empty Collector. metrics may be nil to skip
// OTel mirroring entirely (the spec's own Non-goals exclude requiring
// an OTel backend; /health always works without one).
func NewCollector(metrics *otel.Metrics) *Collector {
	return &Collector{
		eventsIn:      make(map[string]int64),
		eventsOut:     make(map[string]int64),
		metrics:       metrics,
		lastUpdatedAt: time.Now().UTC(),
	}
}

// RecordEventsIn increments the events_in counter for platform by n
// (spec §4.2/§4.3: one per event accepted into telemetry:message_queue).
func (c *Collector) RecordEventsIn(platform string, n int64) {
	c.mu.Lock()
	c.eventsIn[platform] += n
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordEventsIn(context.Background(), platform, n)
	}
}

// RecordEventsOut increments events_out for platform by n (spec §4.7:
// one per event committed to C8).
func (c *Collector) RecordEventsOut(platform string, n int64) {
	c.mu.Lock()
	c.eventsOut[platform] += n
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordEventsOut(context.Background(), platform, n)
	}
}

// RecordEventsToDLQ increments events_to_dlq by n (spec §4.7: every
// message moved to telemetry:dlq after exceeding max_redeliveries).
func (c *Collector) RecordEventsToDLQ(n int64) {
	c.mu.Lock()
	c.eventsToDLQ += n
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordEventsToDLQ(context.Background(), "telemetry:dlq", n)
	}
}

// RecordPollError increments poll_errors by 1 (spec §4.4/§4.5: a
// failed cursormonitor or claudetail poll cycle).
func (c *Collector) RecordPollError() {
	c.mu.Lock()
	c.pollErrors++
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordPollError(context.Background(), "health")
	}
}

// SetConsumerLag sets the consumer_lag gauge to lag (spec §4.7: the
// PEL size reported by mqueue.Broker.PendingCount).
func (c *Collector) SetConsumerLag(lag int64) {
	c.mu.Lock()
	c.consumerLag = lag
	c.lastUpdatedAt = time.Now().UTC()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConsumerLag(lag)
	}
}

// Snapshot is the JSON shape returned by the /health endpoint.
type Snapshot struct {
	Status        string           `json:"status"`
	EventsIn      map[string]int64 `json:"events_in"`
	EventsOut     map[string]int64 `json:"events_out"`
	EventsToDLQ   int64            `json:"events_to_dlq"`
	ConsumerLag   int64            `json:"consumer_lag"`
	PollErrors    int64            `json:"poll_errors"`
	LastUpdatedAt time.Time        `json:"last_updated_at"`
}

// Snapshot returns a consistent point-in-time copy of every counter.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	eventsIn := make(map[string]int64, len(c.eventsIn))
	for k, v := range c.eventsIn {
		eventsIn[k] = v
	}
	eventsOut := make(map[string]int64, len(c.eventsOut))
	for k, v := range c.eventsOut {
		eventsOut[k] = v
	}

	return Snapshot{
		Status:        "ok",
		EventsIn:      eventsIn,
		EventsOut:     eventsOut,
		EventsToDLQ:   c.eventsToDLQ,
		ConsumerLag:   c.consumerLag,
		PollErrors:    c.pollErrors,
		LastUpdatedAt: c.lastUpdatedAt,
	}
}
