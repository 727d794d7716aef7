package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

// ShowtimeRepo manages showtimes and the seats provisioned for them.  It is
// the read-only catalog view the reservation engine consults.
type ShowtimeRepo struct {
	db *database.DB
}

// NewShowtimeRepo constructs a ShowtimeRepo with the given DB handle.
func NewShowtimeRepo(db *database.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// Create inserts a showtime for movieID and one available seat per entry
// in seatNumbers, all in one transaction.  It returns ErrMovieNotFound when
// the movie does not exist and ErrConflict when seat numbers repeat.
func (r *ShowtimeRepo) Create(ctx context.Context, movieID uint64, startTime time.Time, seatNumbers []string) (*model.Showtime, []model.Seat, error) {
	var (
		st    model.Showtime
		seats []model.Seat
	)
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)

		var exists int
		err := conn.QueryRowContext(ctx, `SELECT 1 FROM movies WHERE id = ?`, movieID).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrMovieNotFound
			}
			return fmt.Errorf("check movie: %w", err)
		}

		now := time.Now().UTC()
		st = model.Showtime{MovieID: movieID, StartTime: startTime.UTC(), CreatedAt: now, UpdatedAt: now}
		res, err := conn.ExecContext(ctx,
			`INSERT INTO showtimes (movie_id, start_time, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			st.MovieID, st.StartTime, now, now)
		if err != nil {
			return fmt.Errorf("insert showtime: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert showtime: %w", err)
		}
		st.ID = uint64(id)

		if len(seatNumbers) == 0 {
			return nil
		}
		query := `INSERT INTO seats (showtime_id, seat_number, is_reserved, created_at, updated_at) VALUES `
		args := make([]any, 0, len(seatNumbers)*4)
		for i, num := range seatNumbers {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, 0, ?, ?)"
			args = append(args, st.ID, num, now, now)
		}
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("duplicate seat number: %w", ErrConflict)
			}
			return fmt.Errorf("insert seats: %w", err)
		}
		seats, err = r.listSeats(ctx, conn, st.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &st, seats, nil
}

// FindShowtimeByID returns the showtime or ErrShowtimeNotFound.
func (r *ShowtimeRepo) FindShowtimeByID(ctx context.Context, id uint64) (*model.Showtime, error) {
	const q = `SELECT id, movie_id, start_time, created_at, updated_at FROM showtimes WHERE id = ?`
	var st model.Showtime
	err := r.db.Conn(ctx).QueryRowContext(ctx, q, id).
		Scan(&st.ID, &st.MovieID, &st.StartTime, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowtimeNotFound
		}
		return nil, fmt.Errorf("find showtime: %w", err)
	}
	return &st, nil
}

// ListByMovie returns the showtimes of a movie ordered by start time.
func (r *ShowtimeRepo) ListByMovie(ctx context.Context, movieID uint64) ([]model.Showtime, error) {
	const q = `SELECT id, movie_id, start_time, created_at, updated_at
	           FROM showtimes WHERE movie_id = ? ORDER BY start_time, id`
	rows, err := r.db.Conn(ctx).QueryContext(ctx, q, movieID)
	if err != nil {
		return nil, fmt.Errorf("list showtimes: %w", err)
	}
	defer rows.Close()

	result := make([]model.Showtime, 0)
	for rows.Next() {
		var st model.Showtime
		if err := rows.Scan(&st.ID, &st.MovieID, &st.StartTime, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan showtime: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list showtimes: %w", err)
	}
	return result, nil
}

// ListSeats returns the seat map of a showtime in provisioning order.
func (r *ShowtimeRepo) ListSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	return r.listSeats(ctx, r.db.Conn(ctx), showtimeID)
}

func (r *ShowtimeRepo) listSeats(ctx context.Context, conn database.Queryer, showtimeID uint64) ([]model.Seat, error) {
	const q = `SELECT id, showtime_id, seat_number, is_reserved, created_at, updated_at
	           FROM seats WHERE showtime_id = ? ORDER BY id`
	rows, err := conn.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	return scanSeats(rows)
}

// FindSeatsByIDs returns the seats among ids that exist, in ID order.
func (r *ShowtimeRepo) FindSeatsByIDs(ctx context.Context, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return []model.Seat{}, nil
	}
	ph, args := inClause(ids)
	q := `SELECT id, showtime_id, seat_number, is_reserved, created_at, updated_at
	      FROM seats WHERE id IN (` + ph + `) ORDER BY id`
	rows, err := r.db.Conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find seats: %w", err)
	}
	return scanSeats(rows)
}

func scanSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	seats := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.ShowtimeID, &s.SeatNumber, &s.IsReserved, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan seats: %w", err)
	}
	return seats, nil
}

// Delete removes a showtime and its seats.  It refuses with ErrConflict
// while reservations exist and returns ErrShowtimeNotFound when there is
// nothing to delete.
func (r *ShowtimeRepo) Delete(ctx context.Context, id uint64) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)
		var n int
		if err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reservations WHERE showtime_id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("count reservations: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("showtime %d has %d reservations: %w", id, n, ErrConflict)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM seats WHERE showtime_id = ?`, id); err != nil {
			return fmt.Errorf("delete seats: %w", err)
		}
		res, err := conn.ExecContext(ctx, `DELETE FROM showtimes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete showtime: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return ErrShowtimeNotFound
		}
		return nil
	})
}

// SeatGrid returns seat labels for rows x perRow, rows labelled A..Z, AA..
// and seats numbered from 1, e.g. A1, A2, B1.
func SeatGrid(rows, perRow int) []string {
	if rows <= 0 || perRow <= 0 {
		return nil
	}
	out := make([]string, 0, rows*perRow)
	for i := 0; i < rows; i++ {
		label := indexToRowLabel(i)
		for n := 1; n <= perRow; n++ {
			out = append(out, fmt.Sprintf("%s%d", label, n))
		}
	}
	return out
}

// indexToRowLabel converts a zero-based index to an alphabetical row label like A, B, AA
func indexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}
