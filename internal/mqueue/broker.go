// Package mqueue implements the message queue abstraction (C2): a
// persistent, ordered, append-only log per logical stream with
// consumer groups, a Pending Entries List, and a Dead Letter Queue,
// backed by Redis Streams.
package mqueue

import (
	"context"
	"time"
)

// Stream names for the three logical streams this module uses (spec §4.2).
const (
	StreamMessageQueue = "telemetry:message_queue"
	StreamCDC          = "telemetry:cdc"
	StreamDLQ          = "telemetry:dlq"

	// ProcessorsGroup is the consumer group name C7 uses against
	// StreamMessageQueue (spec §4.7).
	ProcessorsGroup = "processors"

	// DefaultMaxLenApprox bounds stream retention (spec §4.2, §6).
	DefaultMaxLenApprox = 10000
)

// Message is one entry read back from a stream via ReadGroup.
type Message struct {
	ID     string
	Fields map[string]interface{}
}

// Broker is the append-only log abstraction C2 exposes. Implementations
// must provide at-least-once delivery: an appended message is either
// acked by a consumer or remains in the PEL for redelivery.
type Broker interface {
	// Append writes fields to stream and returns the assigned,
	// strictly-increasing stream ID. Bounded by a short timeout (spec
	// §4.2: 1s) — callers must not block the caller beyond that.
	Append(ctx context.Context, stream string, fields map[string]interface{}) (string, error)

	// EnsureGroup creates the consumer group on stream starting from
	// the beginning of the stream, creating the stream if it doesn't
	// exist yet. Idempotent: a BUSYGROUP error is swallowed.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup performs a blocking consumer-group read. Returns up to
	// count undelivered (or previously-unacked, for a recovering
	// consumer) messages, blocking for at most blockMs if none are
	// immediately available. A nil, nil return means the block timed
	// out with nothing to deliver.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, blockMs int64) ([]Message, error)

	// Ack removes id from group's PEL on stream.
	Ack(ctx context.Context, stream, group, id string) error

	// DeliveryCount reports how many times id has been delivered to
	// group's consumers (spec §4.2).
	DeliveryCount(ctx context.Context, stream, group, id string) (int64, error)

	// Trim bounds stream to approximately maxLen entries, trimming
	// from the head (oldest first).
	Trim(ctx context.Context, stream string, maxLen int64) error

	// PendingCount reports the number of undelivered-or-unacked
	// entries in group's PEL on stream — used for the consumer_lag
	// metric.
	PendingCount(ctx context.Context, stream, group string) (int64, error)

	// Close releases any underlying connection resources.
	Close() error
}

// AppendTimeout is the bound on Append per spec §4.2: "a short bounded
// timeout (1 s) and is fire-and-forget from the hook side."
const AppendTimeout = 1 * time.Second
