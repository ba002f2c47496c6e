package mqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker against a real Redis Streams server,
// grounded on goadesign-goa-ai's direct *redis.Client usage and the
// XGroupCreateMkStream/XReadGroup/XAck/XAdd idiom from the
// stream-consumer reference implementation.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an existing *redis.Client. Callers own the
// client's lifecycle beyond Close.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// NewRedisBrokerFromAddr dials a new client against addr ("host:port").
func NewRedisBrokerFromAddr(addr string) *RedisBroker {
	return &RedisBroker{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (b *RedisBroker) Append(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, AppendTimeout)
	defer cancel()

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("mqueue: append to %s: %w", stream, err)
	}
	return id, nil
}

func (b *RedisBroker) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("mqueue: ensure group %s on %s: %w", group, stream, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// claimMinIdle is how long a PEL entry must have gone un-acked before
// ReadGroup reclaims it from whichever consumer last held it. This is
// what makes a crash between commit and ack (S4) or a hung/dead
// consumer recoverable: XREADGROUP ">" alone never redelivers, it
// only ever hands out entries the group has never delivered before.
const claimMinIdle = 30 * time.Second

func (b *RedisBroker) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, blockMs int64) ([]Message, error) {
	messages, err := b.claimStale(ctx, stream, group, consumer, count)
	if err != nil {
		return nil, err
	}

	remaining := count - int64(len(messages))
	if remaining <= 0 {
		return messages, nil
	}

	// Only block waiting on new entries if reclaiming found nothing;
	// otherwise return the reclaimed work immediately.
	block := time.Duration(blockMs) * time.Millisecond
	if len(messages) > 0 {
		block = 0
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    remaining,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if len(messages) > 0 {
				return messages, nil
			}
			return nil, nil
		}
		return nil, fmt.Errorf("mqueue: read group %s on %s: %w", group, stream, err)
	}

	for _, s := range res {
		for _, m := range s.Messages {
			messages = append(messages, Message{ID: m.ID, Fields: m.Values})
		}
	}
	return messages, nil
}

// claimStale reclaims up to count PEL entries idle for at least
// claimMinIdle via XAUTOCLAIM, reassigning them to consumer so a
// recovered or replacement consumer picks up messages a dead one
// never acked (spec §4.2, S4, S5).
func (b *RedisBroker) claimStale(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error) {
	claimed, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("mqueue: autoclaim %s/%s: %w", stream, group, err)
	}

	messages := make([]Message, 0, len(claimed))
	for _, m := range claimed {
		messages = append(messages, Message{ID: m.ID, Fields: m.Values})
	}
	return messages, nil
}

func (b *RedisBroker) Ack(ctx context.Context, stream, group, id string) error {
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("mqueue: ack %s on %s/%s: %w", id, stream, group, err)
	}
	return nil
}

func (b *RedisBroker) DeliveryCount(ctx context.Context, stream, group, id string) (int64, error) {
	res, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("mqueue: delivery count for %s on %s/%s: %w", id, stream, group, err)
	}
	for _, p := range res {
		if p.ID == id {
			return p.RetryCount, nil
		}
	}
	// Not in the PEL: either never delivered or already acked.
	return 0, nil
}

func (b *RedisBroker) Trim(ctx context.Context, stream string, maxLen int64) error {
	if err := b.client.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err(); err != nil {
		return fmt.Errorf("mqueue: trim %s: %w", stream, err)
	}
	return nil
}

func (b *RedisBroker) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	summary, err := b.client.XPending(ctx, stream, group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("mqueue: pending count on %s/%s: %w", stream, group, err)
	}
	return summary.Count, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
