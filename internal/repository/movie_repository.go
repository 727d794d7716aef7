package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

// MovieRepo provides CRUD operations for the movie catalog.
type MovieRepo struct {
	db *database.DB
}

// NewMovieRepo returns a MovieRepo bound to db.
func NewMovieRepo(db *database.DB) *MovieRepo { return &MovieRepo{db: db} }

const movieColumns = `id, title, COALESCE(description, ''), COALESCE(poster_url, ''), COALESCE(genre, ''), created_at, updated_at`

func scanMovie(sc interface{ Scan(...any) error }) (model.Movie, error) {
	var m model.Movie
	err := sc.Scan(&m.ID, &m.Title, &m.Description, &m.PosterURL, &m.Genre, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Create inserts m and populates its ID and timestamps.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	now := time.Now().UTC()
	const q = `INSERT INTO movies (title, description, poster_url, genre, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.Conn(ctx).ExecContext(ctx, q,
		m.Title, nullable(m.Description), nullable(m.PosterURL), nullable(m.Genre), now, now)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	m.ID = uint64(id)
	m.CreatedAt, m.UpdatedAt = now, now
	return nil
}

// Update overwrites the editable fields of movie m.ID.
func (r *MovieRepo) Update(ctx context.Context, m *model.Movie) error {
	now := time.Now().UTC()
	const q = `UPDATE movies SET title = ?, description = ?, poster_url = ?, genre = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.Conn(ctx).ExecContext(ctx, q,
		m.Title, nullable(m.Description), nullable(m.PosterURL), nullable(m.Genre), now, m.ID)
	if err != nil {
		return fmt.Errorf("update movie: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for unchanged rows too, so confirm existence
		if _, err := r.GetByID(ctx, m.ID); err != nil {
			return err
		}
	}
	m.UpdatedAt = now
	return nil
}

// Delete removes a movie.  Showtimes that still have reservations block
// the delete with ErrConflict.
func (r *MovieRepo) Delete(ctx context.Context, id uint64) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		conn := r.db.Conn(ctx)
		var n int
		const cnt = `SELECT COUNT(*) FROM reservations r
		             JOIN showtimes st ON st.id = r.showtime_id
		             WHERE st.movie_id = ?`
		if err := conn.QueryRowContext(ctx, cnt, id).Scan(&n); err != nil {
			return fmt.Errorf("count reservations: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("movie %d has %d reservations: %w", id, n, ErrConflict)
		}
		const delSeats = `DELETE FROM seats WHERE showtime_id IN (SELECT id FROM showtimes WHERE movie_id = ?)`
		if _, err := conn.ExecContext(ctx, delSeats, id); err != nil {
			return fmt.Errorf("delete seats: %w", err)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM showtimes WHERE movie_id = ?`, id); err != nil {
			return fmt.Errorf("delete showtimes: %w", err)
		}
		res, err := conn.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete movie: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return ErrMovieNotFound
		}
		return nil
	})
}

// GetByID returns the movie or ErrMovieNotFound.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	q := `SELECT ` + movieColumns + ` FROM movies WHERE id = ?`
	m, err := scanMovie(r.db.Conn(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, fmt.Errorf("get movie: %w", err)
	}
	return &m, nil
}

// List returns all movies, or only those of genre when it is non-empty.
// Genre matching is case-insensitive.
func (r *MovieRepo) List(ctx context.Context, genre string) ([]model.Movie, error) {
	q := `SELECT ` + movieColumns + ` FROM movies`
	var args []any
	if g := strings.TrimSpace(genre); g != "" {
		q += ` WHERE LOWER(genre) = ?`
		args = append(args, strings.ToLower(g))
	}
	q += ` ORDER BY title, id`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	movies := make([]model.Movie, 0)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	return movies, nil
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
