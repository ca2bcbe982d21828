package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/slotswap/internal/notify"
)

// Consumer receives peer changes from the fanout exchange and republishes
// them into the local broker.
type Consumer struct {
	url      string
	exchange string
	origin   string
	sink     *notify.Broker
	log      *slog.Logger
}

func NewConsumer(url, exchange, origin string, sink *notify.Broker, log *slog.Logger) *Consumer {
	return &Consumer{url: url, exchange: exchange, origin: origin, sink: sink, log: log}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff. Signals missed while disconnected are lost;
// subscribers catch up on their next re-read.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WarnContext(ctx, "change consumer: dial failed",
				slog.String("error", err.Error()), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WarnContext(ctx, "change consumer: loop ended, reconnecting", slog.String("error", err.Error()))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch, c.exchange); err != nil {
		return err
	}
	// one private queue per instance; the server names it and drops it on disconnect
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.WarnContext(ctx, "change consumer: bad message", slog.String("error", err.Error()))
			}
		}
	}
}

// handle republishes one peer change. Our own messages come back through
// the fanout and are ignored.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	change, err := decode(body)
	if err != nil {
		return err
	}
	if change.Origin == c.origin {
		return nil
	}
	c.sink.Publish(ctx, change)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
