package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	v1 "github.com/bookrelay-lab/bookrelay/internal/api/v1"
	"github.com/bookrelay-lab/bookrelay/internal/broker"
	"github.com/bookrelay-lab/bookrelay/internal/storage"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryDelay   = time.Second
	defaultWriteTimeout = 5 * time.Second

	resubscribeInitialDelay = time.Second
	resubscribeMaxDelay     = 30 * time.Second
)

// Options bounds the consumer's write retry loop.
type Options struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	WriteTimeout time.Duration
}

func (o Options) normalized() Options {
	n := o
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = defaultMaxAttempts
	}
	if n.RetryDelay <= 0 {
		n.RetryDelay = defaultRetryDelay
	}
	if n.WriteTimeout <= 0 {
		n.WriteTimeout = defaultWriteTimeout
	}
	return n
}

// Subscriber is the consuming side of the broker client.
type Subscriber interface {
	Consume(ctx context.Context, handler broker.Handler) error
}

// Consumer drains the queue and persists events. Per message it moves
// through decode → bounded-retry write → ack, or dead-letters on a terminal
// failure. Messages are handled one at a time, so persistence order matches
// delivery order for a single instance; running more instances is safe only
// because the write is an idempotent upsert.
type Consumer struct {
	subscriber Subscriber
	store      storage.EventStore
	opts       Options

	sleepFn func(ctx context.Context, d time.Duration) error
}

// New creates a consumer.
func New(subscriber Subscriber, store storage.EventStore, opts Options) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		store:      store,
		opts:       opts.normalized(),
		sleepFn:    sleepCtx,
	}
}

// Run subscribes and blocks until ctx is cancelled. A lost subscription
// (broker down at startup, connection dropped mid-consume) is retried with
// backoff rather than propagated, so a broker restart never takes the
// process down. The in-flight message is finished (acked or requeued)
// before the subscription winds down.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("[Consumer] Starting",
		"max_attempts", c.opts.MaxAttempts,
		"retry_delay", c.opts.RetryDelay,
		"write_timeout", c.opts.WriteTimeout,
	)

	delay := resubscribeInitialDelay
	for {
		err := c.subscriber.Consume(ctx, c.Handle)
		if ctx.Err() != nil {
			return nil
		}

		slog.Warn("[Consumer] Subscription lost, resubscribing",
			"delay", delay,
			"error", err,
		)
		if sleepErr := c.sleepFn(ctx, delay); sleepErr != nil {
			return nil
		}
		delay *= 2
		if delay > resubscribeMaxDelay {
			delay = resubscribeMaxDelay
		}
	}
}

// Handle processes one delivered message body. A nil return acknowledges
// the message, including the two terminal drop cases (undecodable payload,
// exhausted retries), where leaving the message queued would only block
// everything behind it.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var evt v1.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		// Retrying cannot fix malformed data.
		slog.Error("[Consumer] Dropping undecodable message", "error", err)
		return nil
	}

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
		err := c.store.UpsertEvent(writeCtx, &evt)
		cancel()

		if err == nil {
			slog.Info("[Consumer] Saved event",
				"event_id", evt.ID,
				"hotel_id", evt.HotelID,
				"attempt", attempt,
			)
			return nil
		}

		if attempt < c.opts.MaxAttempts {
			slog.Warn("[Consumer] Store write failed, retrying",
				"event_id", evt.ID,
				"attempt", attempt,
				"max_attempts", c.opts.MaxAttempts,
				"error", err,
			)
			if sleepErr := c.sleepFn(ctx, c.opts.RetryDelay); sleepErr != nil {
				// Shutting down mid-retry: requeue so a restart picks the
				// message up again. The upsert keeps redelivery harmless.
				return sleepErr
			}
			continue
		}

		slog.Error("[Consumer] Dead-lettering event after exhausted retries",
			"event_id", evt.ID,
			"hotel_id", evt.HotelID,
			"attempts", c.opts.MaxAttempts,
			"error", err,
		)
	}

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
