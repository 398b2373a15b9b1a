package messaging

import (
	"context"
	"sync"
)

// memGroupBuffer bounds each consumer group's backlog. Publish blocks
// once a group falls this far behind, mirroring broker backpressure.
const memGroupBuffer = 1024

// MemoryBus is an in-process Bus used by tests and single-process demos.
// Semantics match the real transport: per-topic FIFO delivery into each
// group, fan-out across groups, competing consumers within a group, and
// commit-on-dispatch (a message handed to Receive is gone for good).
type MemoryBus struct {
	mu     sync.Mutex
	groups map[string]*memGroup
}

type memGroup struct {
	topics map[string]struct{}
	ch     chan Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{groups: make(map[string]*memGroup)}
}

func (b *MemoryBus) group(name string, topics []string) *memGroup {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[name]
	if !ok {
		g = &memGroup{
			topics: make(map[string]struct{}),
			ch:     make(chan Message, memGroupBuffer),
		}
		b.groups[name] = g
	}
	for _, t := range topics {
		g.topics[t] = struct{}{}
	}
	return g
}

// Register creates the group subscription up front so messages published
// before the first Receive are not lost.
func (b *MemoryBus) Register(group string, topics ...string) {
	b.group(group, topics)
}

// Publish delivers the payload to every group subscribed to the topic.
func (b *MemoryBus) Publish(ctx context.Context, topic, payload string) error {
	b.mu.Lock()
	var targets []*memGroup
	for _, g := range b.groups {
		if _, ok := g.topics[topic]; ok {
			targets = append(targets, g)
		}
	}
	b.mu.Unlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, g := range targets {
		select {
		case g.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Receive blocks for the first available message, then drains whatever
// else is already queued for the group.
func (b *MemoryBus) Receive(ctx context.Context, group string, topics []string) ([]Message, error) {
	g := b.group(group, topics)

	var msgs []Message
	select {
	case msg := <-g.ch:
		msgs = append(msgs, msg)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case msg := <-g.ch:
			msgs = append(msgs, msg)
		default:
			return msgs, nil
		}
	}
}
