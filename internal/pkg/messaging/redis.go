package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// payloadField is the single stream entry field carrying the text payload.
	payloadField = "payload"

	// receiveBlock caps how long one Receive blocks broker-side before
	// returning an empty batch, keeping the consumer loop responsive to
	// cancellation.
	receiveBlock = 5 * time.Second

	receiveCount = 32
)

// RedisBus is the production Bus, backed by Redis Streams. Each topic is
// a stream; each service subscribes under its own consumer group so every
// service sees every message (XADD / XREADGROUP / XACK).
//
// Entry IDs are acknowledged as soon as a batch is read, before any
// handler runs, matching the broker's auto-commit behavior. A crash
// between ack and persistence silently drops that unit of work.
type RedisBus struct {
	client   *redis.Client
	consumer string

	mu      sync.Mutex
	ensured map[string]struct{} // "group\x00topic" pairs already created
}

// NewRedisBus connects to the broker at addr. consumer names this process
// within its groups (typically the service name).
func NewRedisBus(addr, consumer string) *RedisBus {
	return &RedisBus{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		consumer: consumer,
		ensured:  make(map[string]struct{}),
	}
}

// Ping probes broker reachability; used by startup readiness polling.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Publish appends the payload to the topic stream and blocks until the
// broker acknowledges the write.
func (b *RedisBus) Publish(ctx context.Context, topic, payload string) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("messaging: publish to %q: %w", topic, err)
	}
	return nil
}

// ensureGroup creates the consumer group at the start of the stream so a
// new service instance replays from the earliest retained entry. Creation
// is idempotent: an existing group is not an error.
func (b *RedisBus) ensureGroup(ctx context.Context, group, topic string) error {
	key := group + "\x00" + topic
	b.mu.Lock()
	_, done := b.ensured[key]
	b.mu.Unlock()
	if done {
		return nil
	}

	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("messaging: create group %q on %q: %w", group, topic, err)
	}

	b.mu.Lock()
	b.ensured[key] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Receive reads the next batch for the group across all topics and acks
// every entry before returning. An empty batch after the block timeout is
// not an error.
func (b *RedisBus) Receive(ctx context.Context, group string, topics []string) ([]Message, error) {
	for _, topic := range topics {
		if err := b.ensureGroup(ctx, group, topic); err != nil {
			return nil, err
		}
	}

	// XREADGROUP wants stream names followed by one ">" cursor per stream.
	streams := make([]string, 0, len(topics)*2)
	streams = append(streams, topics...)
	for range topics {
		streams = append(streams, ">")
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: b.consumer,
		Streams:  streams,
		Count:    receiveCount,
		Block:    receiveBlock,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("messaging: read group %q: %w", group, err)
	}

	var msgs []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			// Commit before dispatch: once acked the entry will never be
			// redelivered to this group.
			if err := b.client.XAck(ctx, stream.Stream, group, entry.ID).Err(); err != nil {
				return nil, fmt.Errorf("messaging: ack %s on %q: %w", entry.ID, stream.Stream, err)
			}
			payload, _ := entry.Values[payloadField].(string)
			msgs = append(msgs, Message{Topic: stream.Stream, Payload: payload})
		}
	}
	return msgs, nil
}
