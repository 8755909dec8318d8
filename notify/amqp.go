package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialTimeout   = 2 * time.Second
	defaultRedialBackoff = 5 * time.Second
)

var errPublisherClosed = errors.New("rabbitmq publisher closed")

// AMQPPublisher sends events to a durable topic exchange for downstream consumers
// (achievements, email digests).
type AMQPPublisher struct {
	url        string
	exchange   string
	routingKey string

	dialTimeout   time.Duration
	redialBackoff time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	nextDial time.Time
	closed   bool
}

// NewAMQPPublisher dials RabbitMQ and declares the exchange.
func NewAMQPPublisher(url, exchange, routingKey string) (*AMQPPublisher, error) {
	p := newAMQPPublisher(url, exchange, routingKey)
	conn, ch, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.conn, p.channel = conn, ch
	return p, nil
}

func newAMQPPublisher(url, exchange, routingKey string) *AMQPPublisher {
	return &AMQPPublisher{
		url:           url,
		exchange:      exchange,
		routingKey:    routingKey,
		dialTimeout:   defaultDialTimeout,
		redialBackoff: defaultRedialBackoff,
	}
}

// dial bounds the TCP connect and the AMQP handshake by dialTimeout.
func (p *AMQPPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

// ready returns an open channel. A dropped connection is redialled at most once per
// redialBackoff, and never while holding mu.
func (p *AMQPPublisher) ready() (*amqp.Channel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPublisherClosed
	}
	if p.conn != nil && !p.conn.IsClosed() && p.channel != nil && !p.channel.IsClosed() {
		ch := p.channel
		p.mu.Unlock()
		return ch, nil
	}
	now := time.Now()
	if now.Before(p.nextDial) {
		next := p.nextDial
		p.mu.Unlock()
		return nil, fmt.Errorf("rabbitmq unavailable, next redial at %s", next.Format(time.RFC3339))
	}
	p.nextDial = now.Add(p.redialBackoff)
	p.mu.Unlock()

	conn, ch, err := p.dial()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ch.Close()
		conn.Close()
		return nil, errPublisherClosed
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.channel = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) Name() string { return "rabbitmq" }

func (p *AMQPPublisher) Publish(ctx context.Context, evt CoinsEarnedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.ready()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Event,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to exchange %s: %w", p.exchange, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
