// Package repository holds the SQL data access layer.  Every repository
// reads and writes through database.DB.Conn, so a method called with a
// context produced by database.DB.WithTx joins that transaction.
//
// The sentinel errors below let higher layers tell failure scenarios apart
// without inspecting driver errors.
package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict is returned when a delete or update cannot be performed
// because of dependent records, such as deleting a showtime that still
// has reservations.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrShowtimeNotFound is returned when a showtime lookup yields no rows.
var ErrShowtimeNotFound = errors.New("showtime not found")

// ErrMovieNotFound is returned when a movie lookup yields no rows.
var ErrMovieNotFound = errors.New("movie not found")

// ErrReservationNotFound is returned when a reservation does not exist or
// is not owned by the requesting user.  The two cases are deliberately
// indistinguishable.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrDuplicateClaim is returned by ReservationRepo.Create when a live
// reservation already exists for the same showtime and seat.  It means the
// seat ledger was bypassed or is inconsistent and must be treated as an
// integrity violation.
var ErrDuplicateClaim = errors.New("duplicate claim: seat already has a live reservation")

// ErrSeatConflict matches any *SeatConflictError via errors.Is.
var ErrSeatConflict = errors.New("seat conflict")

// SeatConflictError reports the requested seats that could not be claimed
// because they are reserved, do not exist, or belong to another showtime.
type SeatConflictError struct {
	ShowtimeID uint64
	SeatIDs    []uint64
}

func (e *SeatConflictError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("seats unavailable for showtime %d: [%s]", e.ShowtimeID, strings.Join(ids, ","))
}

func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// inClause builds "?,?,?" and the matching argument list for ids.
func inClause(ids []uint64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ","), args
}
