package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/slotswap/internal/notify"
)

// Publisher sends local changes to the fanout exchange. The connection is
// opened on first use and re-dialed after a failure.
type Publisher struct {
	url      string
	exchange string
	origin   string
	log      *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, exchange, origin string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, exchange: exchange, origin: origin, log: log}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// PublishChange sends c to every peer. Signals are transient, so messages
// are not persisted.
func (p *Publisher) PublishChange(ctx context.Context, c notify.Change) error {
	body, err := encode(p.origin, c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		AppId:        p.origin,
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}

type changeSender interface {
	PublishChange(ctx context.Context, c notify.Change) error
}

// Forward relays every locally originated change from broker to out until
// ctx ends. Relayed changes (non-empty Origin) are skipped so peers never
// echo each other. Send failures are logged and the change is dropped.
func Forward(ctx context.Context, broker *notify.Broker, out changeSender, log *slog.Logger) error {
	sub, err := broker.Subscribe(notify.Filter{})
	if err != nil {
		return err
	}
	defer sub.Release(ctx, log, "amqp-relay")

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-sub.C():
			if !ok {
				return nil
			}
			if c.Origin != "" {
				continue
			}
			if err := out.PublishChange(ctx, c); err != nil {
				log.WarnContext(ctx, "relay change failed",
					slog.String("topic", string(c.Topic)),
					slog.String("entity_id", c.EntityID),
					slog.String("error", err.Error()))
			}
		}
	}
}
