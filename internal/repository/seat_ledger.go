package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/metrics"
)

// SeatLedger is the authority on whether a seat is reserved.  A claim is
// all-or-nothing: either every requested seat flips from available to
// reserved in one transaction or none does.
type SeatLedger struct {
	db  *database.DB
	now func() time.Time
}

// NewSeatLedger returns a ledger bound to db.
func NewSeatLedger(db *database.DB) *SeatLedger {
	return &SeatLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ClaimSeats atomically marks seatIDs as reserved for showtimeID and returns
// the claimed IDs.  seatIDs must be non-empty and distinct.
//
// The available rows are read under a row lock (MySQL) and then flipped with
// a conditional update; the affected-row count must match the request or
// the transaction is rolled back.  When any seat is reserved, missing, or
// belongs to another showtime a *SeatConflictError lists exactly those
// seats and nothing is changed.
func (l *SeatLedger) ClaimSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, errors.New("claim seats: empty seat set")
	}
	start := time.Now()
	defer func() { metrics.ClaimDuration.Observe(time.Since(start).Seconds()) }()

	var claimed []uint64
	err := l.db.WithTx(ctx, func(ctx context.Context) error {
		conn := l.db.Conn(ctx)
		ph, ids := inClause(seatIDs)

		sel := `SELECT id FROM seats
		        WHERE showtime_id = ? AND is_reserved = 0 AND id IN (` + ph + `)` + l.db.Dialect.ForUpdate()
		rows, err := conn.QueryContext(ctx, sel, append([]any{showtimeID}, ids...)...)
		if err != nil {
			return fmt.Errorf("select available seats: %w", err)
		}
		available := make(map[uint64]bool, len(seatIDs))
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan seat: %w", err)
			}
			available[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate seats: %w", err)
		}
		rows.Close()

		var unavailable []uint64
		for _, id := range seatIDs {
			if !available[id] {
				unavailable = append(unavailable, id)
			}
		}
		if len(unavailable) > 0 {
			return &SeatConflictError{ShowtimeID: showtimeID, SeatIDs: unavailable}
		}

		upd := `UPDATE seats SET is_reserved = 1, updated_at = ?
		        WHERE showtime_id = ? AND is_reserved = 0 AND id IN (` + ph + `)`
		res, err := conn.ExecContext(ctx, upd, append([]any{l.now(), showtimeID}, ids...)...)
		if err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}
		if n != int64(len(seatIDs)) {
			// another writer got in between the read and the update
			return &SeatConflictError{ShowtimeID: showtimeID, SeatIDs: append([]uint64(nil), seatIDs...)}
		}
		claimed = append([]uint64(nil), seatIDs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseSeats marks seatIDs available.  Releasing an available seat is a
// no-op, so the call is idempotent.  Ownership is not checked here.
func (l *SeatLedger) ReleaseSeats(ctx context.Context, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	ph, ids := inClause(seatIDs)
	q := `UPDATE seats SET is_reserved = 0, updated_at = ? WHERE id IN (` + ph + `)`
	if _, err := l.db.Conn(ctx).ExecContext(ctx, q, append([]any{l.now()}, ids...)...); err != nil {
		return fmt.Errorf("release seats: %w", err)
	}
	return nil
}
