package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one delivered message. Handlers never return an
// error: by contract a malformed or unprocessable message is logged and
// dropped, never redelivered.
type Handler func(ctx context.Context, msg Message)

// receiveRetryDelay spaces out Receive attempts after transport errors so
// a flapping broker does not spin the loop.
const receiveRetryDelay = 2 * time.Second

// Consumer is a supervised background consumption loop: started once,
// stoppable from outside, with an observable terminal state. Once the
// loop exits it is never restarted; construct a new Consumer instead.
type Consumer struct {
	name    string
	source  Source
	group   string
	topics  []string
	handler Handler

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// NewConsumer builds a consumer for one group over a topic set. name is
// used for logging only.
func NewConsumer(name string, source Source, group string, topics []string, handler Handler) *Consumer {
	return &Consumer{
		name:    name,
		source:  source,
		group:   group,
		topics:  topics,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start launches the loop in its own goroutine. Subsequent calls are
// no-ops.
func (c *Consumer) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Stop requests termination and returns immediately; wait on Done for
// the loop to actually finish.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Done is closed once the loop has terminated for good.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Err reports why the loop stopped: nil until Done is closed, then
// context.Canceled for an ordinary Stop or the fatal transport error.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Consumer) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	slog.Info("consumer started", "consumer", c.name, "group", c.group, "topics", c.topics)

	for {
		// Cancellation is checked at every iteration boundary.
		if err := ctx.Err(); err != nil {
			c.setErr(err)
			slog.Info("consumer stopped", "consumer", c.name, "group", c.group)
			return
		}

		msgs, err := c.source.Receive(ctx, c.group, c.topics)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.ErrorContext(ctx, "consumer receive failed",
				"consumer", c.name, "group", c.group, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(receiveRetryDelay):
			}
			continue
		}

		for _, msg := range msgs {
			c.dispatch(ctx, msg)
		}
	}
}

// dispatch invokes the handler, containing panics so one poison message
// cannot kill the whole loop. The offset is already committed, so the
// message is dropped either way.
func (c *Consumer) dispatch(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "consumer handler panicked",
				"consumer", c.name, "topic", msg.Topic, "panic", fmt.Sprint(r))
		}
	}()
	c.handler(ctx, msg)
}
