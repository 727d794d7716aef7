// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried in ReservationEvent.Type.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
)

// ReservationEvent is published after seats are reserved or a reservation
// is cancelled.  It carries enough information for downstream consumers to
// log, notify or trigger analytics without querying the primary database.
type ReservationEvent struct {
	EventID        string   `json:"event_id"`
	Type           string   `json:"type"`
	UserID         uint64   `json:"user_id"`
	ShowtimeID     uint64   `json:"showtime_id"`
	MovieID        uint64   `json:"movie_id"`
	StartsAt       string   `json:"starts_at"`
	ReservationIDs []uint64 `json:"reservation_ids"`
	SeatIDs        []uint64 `json:"seat_ids"`
	SeatNumbers    []string `json:"seats,omitempty"`
	OccurredAt     string   `json:"occurred_at"`
}

// NewReservationEvent stamps a fresh event ID and the occurrence time.
func NewReservationEvent(typ string, at time.Time) ReservationEvent {
	return ReservationEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
