package model

import "time"

// Seat is one reservable position for a single showtime.  SeatNumber is
// the human label ("A1", "B12") and is unique within the showtime.
// IsReserved is true exactly when one live reservation references the seat.
//
// Fields:
//
//	ID         – primary key identifier.
//	ShowtimeID – showtime the seat belongs to.
//	SeatNumber – label shown to customers.
//	IsReserved – current reservation state.
//	CreatedAt  – creation timestamp.
//	UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    `json:"id"`
	ShowtimeID uint64    `json:"showtime_id"`
	SeatNumber string    `json:"seat_number"`
	IsReserved bool      `json:"is_reserved"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}
