// Package notify tells the rest of the platform that a user earned coins.
//
// Delivery is best effort. The ledger commit is the source of truth; a lost event only means a
// toast that never appears, so publish failures are logged and dropped.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventCoinsEarned is the event name carried in every payload.
const EventCoinsEarned = "coins_earned"

// CoinsEarnedEvent is the JSON payload published to Redis and RabbitMQ.
type CoinsEarnedEvent struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	UserID     uint      `json:"user_id"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier is what the reward components call after a successful award.
type Notifier interface {
	CoinsEarned(ctx context.Context, userID uint, amount int64, reason string)
}

// Publisher delivers one event to one transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt CoinsEarnedEvent) error
	Close() error
}

// Dispatcher queues events and fans them out to every publisher from one background worker, so a
// slow or unreachable broker never holds up the request that earned the coins. When the queue is
// full the event is dropped and logged.
type Dispatcher struct {
	publishers []Publisher
	log        *zap.Logger
	timeout    time.Duration

	queue chan CoinsEarnedEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// DefaultQueueSize bounds the events waiting for the publish worker.
const DefaultQueueSize = 1024

// NewDispatcher builds a Notifier over publishers and starts its worker. With no publishers it
// only logs.
func NewDispatcher(log *zap.Logger, publishers ...Publisher) *Dispatcher {
	return newDispatcher(log, DefaultQueueSize, 2*time.Second, publishers...)
}

func newDispatcher(log *zap.Logger, queueSize int, timeout time.Duration, publishers ...Publisher) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		publishers: publishers,
		log:        log,
		timeout:    timeout,
		queue:      make(chan CoinsEarnedEvent, queueSize),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

// CoinsEarned never blocks on a publisher. The request context is not used for delivery: a
// client hanging up after commit must not cancel the event.
func (d *Dispatcher) CoinsEarned(_ context.Context, userID uint, amount int64, reason string) {
	evt := CoinsEarnedEvent{
		ID:         uuid.NewString(),
		Event:      EventCoinsEarned,
		UserID:     userID,
		Amount:     amount,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	d.log.Info("coins earned",
		zap.String("event_id", evt.ID),
		zap.Uint("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("reason", reason),
	)
	if len(d.publishers) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, coins earned event dropped", zap.String("event_id", evt.ID))
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.log.Warn("publish queue full, coins earned event dropped",
			zap.String("event_id", evt.ID),
			zap.Int("queue_size", cap(d.queue)),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for evt := range d.queue {
		d.publish(evt)
	}
}

func (d *Dispatcher) publish(evt CoinsEarnedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for _, p := range d.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			d.log.Warn("publish coins earned failed",
				zap.String("publisher", p.Name()),
				zap.String("event_id", evt.ID),
				zap.Error(err),
			)
		}
	}
}

// drain stops accepting events and waits for the worker to deliver what is queued.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// Close delivers queued events, then closes every publisher, logging failures.
func (d *Dispatcher) Close() {
	d.drain()
	for _, p := range d.publishers {
		if err := p.Close(); err != nil {
			d.log.Warn("close publisher failed", zap.String("publisher", p.Name()), zap.Error(err))
		}
	}
}
