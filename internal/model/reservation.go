package model

import "time"

// Reservation records that a user holds one seat for one showtime.  Rows
// are created by a successful reservation and deleted on cancellation;
// they are never updated.
//
// Fields:
//
//	ID              – primary key identifier.
//	UserID          – owner of the reservation.
//	ShowtimeID      – showtime being attended.
//	SeatID          – the seat held.
//	ReservationTime – when the reservation was made.
type Reservation struct {
	ID              uint64    `json:"id"`
	UserID          uint64    `json:"user_id"`
	ShowtimeID      uint64    `json:"showtime_id"`
	SeatID          uint64    `json:"seat_id"`
	ReservationTime time.Time `json:"reservation_time"`
}

// ShowtimeSummary is the showtime part of a ReservationDetail.
type ShowtimeSummary struct {
	ID         uint64    `json:"id"`
	MovieID    uint64    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	StartTime  time.Time `json:"start_time"`
}

// SeatSummary is the seat part of a ReservationDetail.
type SeatSummary struct {
	ID         uint64 `json:"id"`
	SeatNumber string `json:"seat_number"`
}

// ReservationDetail is a reservation joined with its showtime and seat,
// as returned by the listing endpoints.
type ReservationDetail struct {
	Reservation
	Showtime ShowtimeSummary `json:"showtime"`
	Seat     SeatSummary     `json:"seat"`
}
