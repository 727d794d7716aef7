package model

import "time"

// Showtime represents a scheduled screening of a movie.  Its seats are
// provisioned when the showtime is created and belong to it alone.
//
// Fields:
//
//	ID        – primary key identifier.
//	MovieID   – movie being screened.
//	StartTime – when the screening begins (UTC).  Cancellation closes
//	            at this instant.
//	CreatedAt – creation timestamp.
//	UpdatedAt – last update timestamp.
type Showtime struct {
	ID        uint64    `json:"id"`
	MovieID   uint64    `json:"movie_id"`
	StartTime time.Time `json:"start_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
