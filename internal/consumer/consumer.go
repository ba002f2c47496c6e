// Package consumer implements C7: the fast-path batcher that pulls
// events off telemetry:message_queue via the "processors" consumer
// group, commits them to C8 in a single transaction, and routes
// poison messages to the dead letter queue after repeated redelivery
// (spec §4.7). Grounded on the consumer-group read/ack/DLQ loop in
// other_examples/e18ad2ea_brokle-ai-brokle…telemetry_stream_consumer.go,
// reworked onto this module's Broker/Store abstractions.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/errkind"
	"github.com/blueplane-ai/bp-telemetry-core/internal/eventmodel"
	"github.com/blueplane-ai/bp-telemetry-core/internal/events"
	"github.com/blueplane-ai/bp-telemetry-core/internal/mqueue"
	blueplaneotel "github.com/blueplane-ai/bp-telemetry-core/internal/otel"
)

// Config controls batch assembly and backpressure thresholds (spec §4.7).
type Config struct {
	// ConsumerName identifies this consumer within the ProcessorsGroup.
	ConsumerName string

	// BatchCount is the normal XREADGROUP COUNT and the batch size cap.
	BatchCount int64
	// ReducedCount is the COUNT used while under backpressure.
	ReducedCount int64
	// BlockMs is how long a blocking read waits for the first message.
	BlockMs int64
	// BatchWindow bounds how long the batcher keeps accumulating
	// messages after the first one arrives before committing.
	BatchWindow time.Duration
	// MaxRedeliveries is the delivery_count at which an unacked
	// message is moved to the DLQ instead of retried forever.
	MaxRedeliveries int64

	// BackpressureThreshold is the P95 commit latency above which the
	// consumer reduces its read count.
	BackpressureThreshold time.Duration
	// PauseThreshold is the P95 commit latency above which the
	// consumer pauses reads entirely for PauseDuration per cycle.
	PauseThreshold time.Duration
	// PauseDuration bounds how long a single pause lasts.
	PauseDuration time.Duration
	// LatencyWindow is how many recent batch durations feed the P95.
	LatencyWindow int
}

// DefaultConfig returns the Config described in spec §4.7.
func DefaultConfig(consumerName string) Config {
	return Config{
		ConsumerName:          consumerName,
		BatchCount:            100,
		ReducedCount:          50,
		BlockMs:               1000,
		BatchWindow:           50 * time.Millisecond,
		MaxRedeliveries:       3,
		BackpressureThreshold: 50 * time.Millisecond,
		PauseThreshold:        150 * time.Millisecond,
		PauseDuration:         500 * time.Millisecond,
		LatencyWindow:         20,
	}
}

// Store is the subset of C8's write surface the batcher needs.
type Store interface {
	InsertEventsBatch(ctx context.Context, evs []*eventmodel.Event) (int, time.Duration, error)
}

// Batcher is the C7 fast-path consumer/batcher.
type Batcher struct {
	broker mqueue.Broker
	store  Store
	cfg    Config
	logger *events.EventLogger
	bp     *backpressureTracker
}

// New builds a Batcher. logger defaults to a "consumer"-scoped EventLogger.
func New(broker mqueue.Broker, store Store, cfg Config, logger *events.EventLogger) *Batcher {
	if logger == nil {
		logger = events.NewEventLogger("consumer")
	}
	return &Batcher{
		broker: broker,
		store:  store,
		cfg:    cfg,
		logger: logger,
		bp:     newBackpressureTracker(cfg.LatencyWindow),
	}
}

// Run ensures the consumer group exists and loops calling ConsumeOnce
// until ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) error {
	if err := b.broker.EnsureGroup(ctx, mqueue.StreamMessageQueue, mqueue.ProcessorsGroup); err != nil {
		return errkind.NewTransientIOError("ensure consumer group", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if pause := b.bp.pauseFor(b.cfg); pause > 0 {
			b.logger.LogBackpressure("pause_reads", float64(b.bp.p95().Milliseconds()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pause):
			}
			continue
		}

		if err := b.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// count returns the current XREADGROUP COUNT, reduced under backpressure.
func (b *Batcher) count() int64 {
	if b.bp.reduced(b.cfg) {
		b.logger.LogBackpressure("reduce_count", float64(b.bp.p95().Milliseconds()))
		return b.cfg.ReducedCount
	}
	return b.cfg.BatchCount
}

// ConsumeOnce assembles and commits a single batch, or returns nil
// quickly if nothing was available within the blocking read window.
func (b *Batcher) ConsumeOnce(ctx context.Context) error {
	msgs, err := b.assembleBatch(ctx, b.count())
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	return b.processBatch(ctx, msgs)
}

// assembleBatch performs the blocking first read, then keeps reading
// (non-blocking, via a tiny residual-Block) until cap or window
// expires — "up to 100 messages, or up to 50ms after the first
// message, whichever first" (spec §4.7).
func (b *Batcher) assembleBatch(ctx context.Context, cap int64) ([]mqueue.Message, error) {
	first, err := b.broker.ReadGroup(ctx, mqueue.StreamMessageQueue, mqueue.ProcessorsGroup, b.cfg.ConsumerName, cap, b.cfg.BlockMs)
	if err != nil {
		return nil, errkind.NewTransientIOError("read group", err)
	}
	if len(first) == 0 {
		return nil, nil
	}

	batch := first
	deadline := time.Now().Add(b.cfg.BatchWindow)
	for int64(len(batch)) < cap {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		more, err := b.broker.ReadGroup(ctx, mqueue.StreamMessageQueue, mqueue.ProcessorsGroup, b.cfg.ConsumerName, cap-int64(len(batch)), remaining.Milliseconds())
		if err != nil {
			return nil, errkind.NewTransientIOError("read group", err)
		}
		if len(more) == 0 {
			break
		}
		batch = append(batch, more...)
	}
	return batch, nil
}

// processBatch decodes every message, commits the decodable ones in
// one C8 transaction, and on success acks the decoded messages. An
// undecodable message is never acked here: it stays pending until
// handleUndeliverable moves it to the DLQ. On commit failure the
// decoded messages stay pending and the same check escalates those
// that reached the redelivery threshold to the DLQ.
func (b *Batcher) processBatch(ctx context.Context, msgs []mqueue.Message) error {
	evs := make([]*eventmodel.Event, 0, len(msgs))
	decoded := make([]mqueue.Message, 0, len(msgs))
	poison := make([]mqueue.Message, 0)

	for _, m := range msgs {
		ev, err := eventmodel.DecodeStreamFields(m.Fields)
		if err != nil {
			poison = append(poison, m)
			continue
		}
		evs = append(evs, ev)
		decoded = append(decoded, m)
	}

	for _, m := range poison {
		b.handleUndeliverable(ctx, m, errors.New("decode failed"))
	}

	if len(evs) == 0 {
		return nil
	}

	platform := platformsOf(evs)
	spanCtx, span := blueplaneotel.GetGlobalTracer().StartBatchSpan(ctx, blueplaneotel.BatchSpanOptions{
		Platform:      platform,
		Stream:        mqueue.StreamMessageQueue,
		ConsumerGroup: mqueue.ProcessorsGroup,
		BatchSize:     len(evs),
		Operation:     "batch_commit",
	})

	_, duration, err := b.store.InsertEventsBatch(spanCtx, evs)
	if err != nil {
		blueplaneotel.RecordError(span, err, "commit_failed", true)
		span.End()
		b.bp.record(duration)
		for _, m := range decoded {
			b.handleUndeliverable(ctx, m, err)
		}
		return nil
	}
	span.End()

	b.bp.record(duration)
	b.logger.LogBatchCommit(platform, len(evs), float64(duration.Milliseconds()))

	for _, m := range decoded {
		if ackErr := b.broker.Ack(ctx, mqueue.StreamMessageQueue, mqueue.ProcessorsGroup, m.ID); ackErr != nil {
			b.logger.LogPollError("consumer.ack", 1, ackErr)
		}
	}
	return nil
}

// handleUndeliverable checks m's delivery_count and either moves it
// to the DLQ (and acks it) or leaves it pending for natural
// redelivery (spec §4.7).
func (b *Batcher) handleUndeliverable(ctx context.Context, m mqueue.Message, cause error) {
	count, dcErr := b.broker.DeliveryCount(ctx, mqueue.StreamMessageQueue, mqueue.ProcessorsGroup, m.ID)
	if dcErr != nil {
		b.logger.LogPollError("consumer.delivery_count", 1, dcErr)
		return
	}
	if count < b.cfg.MaxRedeliveries {
		return
	}

	dlqFields := make(map[string]interface{}, len(m.Fields)+2)
	for k, v := range m.Fields {
		dlqFields[k] = v
	}
	dlqFields["error"] = cause.Error()
	dlqFields["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if _, err := b.broker.Append(ctx, mqueue.StreamDLQ, dlqFields); err != nil {
		b.logger.LogPollError("consumer.dlq_append", 1, err)
		return
	}

	poisonErr := errkind.NewPoisonEventError(m.ID, count, cause)
	b.logger.LogDLQMove(m.ID, count, poisonErr.Error())

	if err := b.broker.Ack(ctx, mqueue.StreamMessageQueue, mqueue.ProcessorsGroup, m.ID); err != nil {
		b.logger.LogPollError("consumer.ack_after_dlq", 1, err)
	}
}

func platformsOf(evs []*eventmodel.Event) string {
	if len(evs) == 0 {
		return ""
	}
	seen := map[string]struct{}{}
	out := ""
	for _, e := range evs {
		p := string(e.Platform)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		if out != "" {
			out += "+"
		}
		out += p
	}
	return out
}
