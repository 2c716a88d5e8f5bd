package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrUnavailable is returned when the broker connection cannot be
// established or re-established. Ingestion surfaces it to the caller as a
// retryable relay failure.
var ErrUnavailable = errors.New("broker unavailable")

// Config holds the AMQP topology settings: one durable direct exchange
// bound to one durable queue by a fixed routing key.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

// Handler processes one delivered message body. Returning nil acknowledges
// the message; returning an error requeues it.
type Handler func(ctx context.Context, body []byte) error

// Client is a thin wrapper over one AMQP connection and channel. Publish
// lazily reconnects when the connection has dropped; the broker itself holds
// all unacknowledged state, nothing is buffered locally.
type Client struct {
	cfg Config

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New creates a client. No I/O happens until Connect or Publish.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Connect dials the broker and declares the exchange, queue and binding.
// Idempotent: calling it while connected is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: dial failed: %v", ErrUnavailable, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: channel open failed: %v", ErrUnavailable, err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("%w: exchange declare failed: %v", ErrUnavailable, err)
	}

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("%w: queue declare failed: %v", ErrUnavailable, err)
	}

	if err := ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("%w: queue bind failed: %v", ErrUnavailable, err)
	}

	c.conn = conn
	c.ch = ch

	slog.Info("[Broker] Connected",
		"exchange", c.cfg.Exchange,
		"queue", c.cfg.Queue,
		"routing_key", c.cfg.RoutingKey,
	)
	return nil
}

// Publish enqueues one message with persistent delivery mode. It returns
// once the broker has accepted the message, not once a consumer has
// processed it. A dropped connection is re-established first.
func (c *Client) Publish(ctx context.Context, body []byte, correlationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return err
	}

	err := c.ch.PublishWithContext(ctx, c.cfg.Exchange, c.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		MessageId:     uuid.NewString(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish failed: %v", ErrUnavailable, err)
	}

	slog.Info("[Broker] Published message",
		"routing_key", c.cfg.RoutingKey,
		"correlation_id", correlationID,
	)
	return nil
}

// Consume subscribes to the queue and invokes handler for every delivery.
// The message is acknowledged only after handler returns nil; a handler
// error requeues it. Returns nil once ctx is cancelled and ErrUnavailable
// when the subscription drops; the caller resubscribes, which redials a
// closed connection.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	if err := c.connectLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.mu.Unlock()

	// Publishing keeps the shared channel; consuming gets its own so ack
	// state never interleaves with publishes from the same process.
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: consume channel open failed: %v", ErrUnavailable, err)
	}
	defer ch.Close()

	deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume failed: %v", ErrUnavailable, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: delivery channel closed", ErrUnavailable)
			}

			if err := handler(ctx, d.Body); err != nil {
				slog.Warn("[Broker] Handler failed, requeueing message",
					"correlation_id", d.CorrelationId,
					"error", err,
				)
				if nackErr := d.Nack(false, true); nackErr != nil {
					slog.Error("[Broker] Nack failed", "error", nackErr)
				}
				continue
			}

			if ackErr := d.Ack(false); ackErr != nil {
				slog.Error("[Broker] Ack failed", "error", ackErr)
			}
		}
	}
}

// Close tears down the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.ch = nil
	if err != nil {
		return fmt.Errorf("failed to close broker connection: %w", err)
	}

	slog.Info("[Broker] Connection closed")
	return nil
}
