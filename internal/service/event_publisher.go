// Package service holds the application services that sit between the HTTP
// handlers and the repositories: the reservation event publisher and the
// cached movie catalog.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/movie-ticket-reservation/internal/config"
	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/metrics"
	"github.com/iliyamo/movie-ticket-reservation/internal/queue"
)

// SendFunc delivers one encoded event to the broker.
type SendFunc func(ctx context.Context, body []byte) error

// EventPublisher forwards reservation events to RabbitMQ from a background
// goroutine.  Publish never blocks the caller: when the buffer is full the
// event is dropped and counted.  Broker failures trip a circuit breaker so
// an outage costs one failed send per breaker timeout instead of one per
// event.
type EventPublisher struct {
	cfg     config.EventsConfig
	events  chan queue.ReservationEvent
	breaker *gobreaker.CircuitBreaker[struct{}]
	send    SendFunc
	done    chan struct{}

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// PublisherOption configures an EventPublisher.
type PublisherOption func(*EventPublisher)

// WithSender replaces the AMQP sender.
func WithSender(fn SendFunc) PublisherOption {
	return func(p *EventPublisher) { p.send = fn }
}

// NewEventPublisher creates a publisher; call Run to start delivery.
func NewEventPublisher(cfg config.EventsConfig, opts ...PublisherOption) *EventPublisher {
	p := &EventPublisher{
		cfg:    cfg,
		events: make(chan queue.ReservationEvent, cfg.Buffer),
		done:   make(chan struct{}),
	}
	p.send = p.amqpSend
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "rabbitmq-publisher",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("event publisher circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues ev for delivery.
func (p *EventPublisher) Publish(ev queue.ReservationEvent) {
	select {
	case p.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		logging.Warn().Str("event_id", ev.EventID).Str("type", ev.Type).Msg("event buffer full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// still buffered and closes the broker connection.  Run must be called at
// most once.
func (p *EventPublisher) Run(ctx context.Context) {
	defer close(p.done)
	defer p.closeConn()
	for {
		select {
		case ev := <-p.events:
			p.deliver(ctx, ev)
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// Wait blocks until Run has flushed and returned, or ctx is done.
func (p *EventPublisher) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) flush(ctx context.Context) {
	for {
		select {
		case ev := <-p.events:
			p.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (p *EventPublisher) deliver(ctx context.Context, ev queue.ReservationEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		logging.Error().Err(err).Str("event_id", ev.EventID).Msg("marshal event")
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.send(sendCtx, body)
	})
	switch {
	case err == nil:
		metrics.EventsPublished.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.EventsPublished.WithLabelValues("breaker_open").Inc()
	default:
		metrics.EventsPublished.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("event_id", ev.EventID).Str("type", ev.Type).Msg("publish event failed")
	}
}

// amqpSend publishes body as a persistent message to the configured queue
// over a connection that is reused between sends and redialled after any
// failure.
func (p *EventPublisher) amqpSend(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}
	err := p.ch.PublishWithContext(ctx,
		"",           // default exchange
		p.cfg.Queue,  // routing key = queue name
		false, false, // mandatory, immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.closeConnLocked()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *EventPublisher) connectLocked() error {
	p.closeConnLocked()
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue %s: %w", p.cfg.Queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *EventPublisher) closeConn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeConnLocked()
}

func (p *EventPublisher) closeConnLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
