package messaging

import "context"

// Message is one unit of work delivered to a consumer group. By the time
// a handler sees it the offset has already been committed, so a crash
// mid-handler silently drops the unit of work (at-least-once upstream,
// at-most-once after commit).
type Message struct {
	Topic   string
	Payload string
}

// Publisher emits a payload to a named topic. Publish blocks until the
// broker acknowledges the write (flush-on-send), so request paths that
// publish inline pay the full broker round trip before responding.
//
// There is deliberately no package-level default publisher: each service
// constructs exactly one at startup and hands it to every component that
// emits events.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Source delivers messages for one consumer group. Distinct groups each
// see every message on a topic (fan-out across services); consumers that
// share a group compete.
//
// Receive blocks until at least one message is available or ctx is done.
// Offsets for returned messages are committed before Receive returns.
type Source interface {
	Receive(ctx context.Context, group string, topics []string) ([]Message, error)
}

// Bus is a transport usable for both producing and consuming.
type Bus interface {
	Publisher
	Source
}
