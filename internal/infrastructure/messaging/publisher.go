// Package messaging publishes escrow lifecycle events to RabbitMQ.
// Publishing happens after commit and never fails the escrow operation;
// errors are logged and returned so callers can ignore them.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const EscrowEventsQueue = "escrow.events"

// EscrowEventMessage is the body published for every escrow transition.
type EscrowEventMessage struct {
	EventType      string    `json:"event_type"`
	EscrowID       string    `json:"escrow_id"`
	CardInstanceID string    `json:"card_instance_id"`
	OrderID        string    `json:"order_id"`
	Reason         string    `json:"reason,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishEscrowEvent(ctx context.Context, msg EscrowEventMessage) error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishEscrowEvent(context.Context, EscrowEventMessage) error { return nil }

// NewPublisher returns an AMQP publisher for url, or a NoopPublisher when url is empty.
func NewPublisher(url string) Publisher {
	if url == "" {
		return NoopPublisher{}
	}
	return &AMQPPublisher{url: url}
}

// AMQPPublisher keeps one connection and channel open and redials lazily
// after the broker drops them.
type AMQPPublisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (p *AMQPPublisher) PublishEscrowEvent(ctx context.Context, msg EscrowEventMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal escrow event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		log.Warn().Err(err).Str("queue", EscrowEventsQueue).Msg("rabbitmq: channel unavailable")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.EventType,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", EscrowEventsQueue, false, false, pub); err != nil {
		log.Warn().Err(err).Str("escrow_id", msg.EscrowID).Msg("rabbitmq: publish failed")
		p.resetLocked()
		return fmt.Errorf("publish escrow event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) ensureChannel() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(EscrowEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
