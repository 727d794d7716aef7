package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

// ReservationRepo stores one row per reserved seat.  The unique index on
// (showtime_id, seat_id) guarantees at most one live row per seat; Create
// reports a violation as ErrDuplicateClaim.  All timestamps are UTC.
type ReservationRepo struct {
	db *database.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *database.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts res and populates its ID.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (user_id, showtime_id, seat_id, reservation_time)
	           VALUES (?, ?, ?, ?)`
	result, err := r.db.Conn(ctx).ExecContext(ctx, q,
		res.UserID, res.ShowtimeID, res.SeatID, res.ReservationTime.UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("showtime %d seat %d: %w", res.ShowtimeID, res.SeatID, ErrDuplicateClaim)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	res.ID = uint64(id)
	return nil
}

// DeleteByID removes a reservation.  It returns ErrReservationNotFound when
// no row was deleted.
func (r *ReservationRepo) DeleteByID(ctx context.Context, id uint64) error {
	const q = `DELETE FROM reservations WHERE id = ?`
	res, err := r.db.Conn(ctx).ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if n == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// FindByID returns the reservation only if it belongs to ownerID.
func (r *ReservationRepo) FindByID(ctx context.Context, id, ownerID uint64) (*model.Reservation, error) {
	const q = `SELECT id, user_id, showtime_id, seat_id, reservation_time
	           FROM reservations WHERE id = ? AND user_id = ?`
	var res model.Reservation
	err := r.db.Conn(ctx).QueryRowContext(ctx, q, id, ownerID).
		Scan(&res.ID, &res.UserID, &res.ShowtimeID, &res.SeatID, &res.ReservationTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &res, nil
}

const detailSelect = `SELECT r.id, r.user_id, r.showtime_id, r.seat_id, r.reservation_time,
                             st.movie_id, m.title, st.start_time, se.seat_number
                      FROM reservations r
                      JOIN showtimes st ON st.id = r.showtime_id
                      JOIN movies m ON m.id = st.movie_id
                      JOIN seats se ON se.id = r.seat_id`

func scanDetail(sc interface{ Scan(...any) error }) (model.ReservationDetail, error) {
	var d model.ReservationDetail
	err := sc.Scan(
		&d.ID, &d.UserID, &d.ShowtimeID, &d.SeatID, &d.ReservationTime,
		&d.Showtime.MovieID, &d.Showtime.MovieTitle, &d.Showtime.StartTime, &d.Seat.SeatNumber,
	)
	d.Showtime.ID = d.ShowtimeID
	d.Seat.ID = d.SeatID
	return d, err
}

// FindDetailByID returns one reservation of ownerID joined with its
// showtime and seat.
func (r *ReservationRepo) FindDetailByID(ctx context.Context, id, ownerID uint64) (*model.ReservationDetail, error) {
	q := detailSelect + ` WHERE r.id = ? AND r.user_id = ?`
	d, err := scanDetail(r.db.Conn(ctx).QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("find reservation detail: %w", err)
	}
	return &d, nil
}

// FindAllByUser lists the user's reservations ordered by showtime start and
// then by ID.  An empty slice is returned when there are none.
func (r *ReservationRepo) FindAllByUser(ctx context.Context, userID uint64) ([]model.ReservationDetail, error) {
	q := detailSelect + ` WHERE r.user_id = ? ORDER BY st.start_time, r.id`
	return r.listDetails(ctx, q, userID)
}

// ListByShowtime lists every reservation for a showtime ordered by seat,
// for the admin view.
func (r *ReservationRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.ReservationDetail, error) {
	q := detailSelect + ` WHERE r.showtime_id = ? ORDER BY se.seat_number, r.id`
	return r.listDetails(ctx, q, showtimeID)
}

func (r *ReservationRepo) listDetails(ctx context.Context, q string, arg uint64) ([]model.ReservationDetail, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	details := make([]model.ReservationDetail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return details, nil
}
