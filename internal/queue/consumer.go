package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-reservation/internal/config"
	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
)

// StartReservationConsumer consumes the reservation event queue and appends
// one JSON line per event to cfg.ConsumerLog.  It reconnects with
// exponential backoff (capped at 30s) whenever the broker goes away and
// returns only when ctx is cancelled.
func StartReservationConsumer(ctx context.Context, cfg config.EventsConfig) error {
	if err := os.MkdirAll(filepath.Dir(cfg.ConsumerLog), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(cfg.ConsumerLog), err)
	}
	f, err := os.OpenFile(cfg.ConsumerLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	sink := zerolog.New(f).With().Timestamp().Logger()

	log := logging.With().Str("component", "reservation-consumer").Str("queue", cfg.Queue).Logger()
	backoff := time.Second
	for {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		log.Info().Msg("consumer connected")

		err = consumeLoop(ctx, conn, cfg.Queue, sink, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, sink zerolog.Logger, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(sink, d.Body); err != nil {
			log.Error().Err(err).Msg("handle message failed")
			_ = d.Nack(false, false) // no requeue: a bad payload would loop forever
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// handleMessage decodes one event and writes it to sink.
func handleMessage(sink zerolog.Logger, body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	var msg string
	switch ev.Type {
	case EventReservationCreated:
		msg = "Seats reserved"
	case EventReservationCancelled:
		msg = "Reservation cancelled"
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	sink.Info().
		Str("event_id", ev.EventID).
		Str("type", ev.Type).
		Uint64("user_id", ev.UserID).
		Uint64("showtime_id", ev.ShowtimeID).
		Uint64("movie_id", ev.MovieID).
		Str("starts_at", ev.StartsAt).
		Uints64("reservation_ids", ev.ReservationIDs).
		Strs("seats", ev.SeatNumbers).
		Str("occurred_at", ev.OccurredAt).
		Msg(msg)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
