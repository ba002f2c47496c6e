package mqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FakeBroker is an in-memory Broker test double. It models the
// subset of Redis Streams semantics this module depends on: strictly
// increasing stream IDs, per-group Pending Entries Lists, delivery
// counts, and approximate trimming. It does not model multiple
// simultaneous consumers claiming each other's pending entries —
// tests that need that precision should exercise RedisBroker against
// a real Redis instance instead. It also redelivers pending entries
// unconditionally on every ReadGroup call rather than gating on an
// idle-time threshold the way RedisBroker's XAUTOCLAIM-based recovery
// does — there's no fake clock here to model idle time against, so
// this reproduces the eventual redelivery guarantee immediately
// instead of after claimMinIdle has elapsed.
type FakeBroker struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
}

type fakeStream struct {
	entries []fakeEntry
	seq     int64
	groups  map[string]*fakeGroup
}

type fakeEntry struct {
	id     string
	fields map[string]interface{}
}

type fakeGroup struct {
	nextIndex int // index into entries not yet delivered to any consumer
	pel       map[string]*fakePending
}

type fakePending struct {
	index      int
	deliveries int64
}

// NewFakeBroker creates an empty in-memory broker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{streams: make(map[string]*fakeStream)}
}

func (b *FakeBroker) stream(name string) *fakeStream {
	s, ok := b.streams[name]
	if !ok {
		s = &fakeStream{groups: make(map[string]*fakeGroup)}
		b.streams[name] = s
	}
	return s
}

func (b *FakeBroker) Append(_ context.Context, stream string, fields map[string]interface{}) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	s.seq++
	id := fmt.Sprintf("%d-0", s.seq)
	s.entries = append(s.entries, fakeEntry{id: id, fields: fields})
	return id, nil
}

func (b *FakeBroker) EnsureGroup(_ context.Context, stream, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = &fakeGroup{pel: make(map[string]*fakePending)}
	}
	return nil
}

func (b *FakeBroker) ReadGroup(_ context.Context, stream, group, _ string, count int64, _ int64) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("mqueue: fake: group %s does not exist on %s", group, stream)
	}

	var out []Message
	// Redeliver pending entries first (simulates a recovered consumer
	// re-reading its own un-acked messages).
	var pendingIDs []string
	for id := range g.pel {
		pendingIDs = append(pendingIDs, id)
	}
	sort.Strings(pendingIDs)
	for _, id := range pendingIDs {
		if int64(len(out)) >= count {
			break
		}
		p := g.pel[id]
		p.deliveries++
		out = append(out, Message{ID: id, Fields: s.entries[p.index].fields})
	}

	for int64(len(out)) < count && g.nextIndex < len(s.entries) {
		e := s.entries[g.nextIndex]
		g.pel[e.id] = &fakePending{index: g.nextIndex, deliveries: 1}
		out = append(out, Message{ID: e.id, Fields: e.fields})
		g.nextIndex++
	}

	return out, nil
}

func (b *FakeBroker) Ack(_ context.Context, stream, group, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		return fmt.Errorf("mqueue: fake: group %s does not exist on %s", group, stream)
	}
	delete(g.pel, id)
	return nil
}

func (b *FakeBroker) DeliveryCount(_ context.Context, stream, group, id string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		return 0, nil
	}
	p, ok := g.pel[id]
	if !ok {
		return 0, nil
	}
	return p.deliveries, nil
}

func (b *FakeBroker) Trim(_ context.Context, stream string, maxLen int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	if int64(len(s.entries)) <= maxLen {
		return nil
	}
	drop := int64(len(s.entries)) - maxLen
	s.entries = s.entries[drop:]
	for _, g := range s.groups {
		g.nextIndex -= int(drop)
		if g.nextIndex < 0 {
			g.nextIndex = 0
		}
		for id, p := range g.pel {
			p.index -= int(drop)
			if p.index < 0 {
				delete(g.pel, id)
			}
		}
	}
	return nil
}

func (b *FakeBroker) PendingCount(_ context.Context, stream, group string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		return 0, nil
	}
	return int64(len(g.pel)), nil
}

func (b *FakeBroker) Close() error { return nil }

var _ Broker = (*FakeBroker)(nil)
