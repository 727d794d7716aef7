package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	dsn := database.SQLiteDSN("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	db, err := database.Open(ctx, database.SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func seedUser(t *testing.T, db *database.DB, name string) uint64 {
	t.Helper()
	id, err := NewUserRepo(db).Create(context.Background(), name, "secret", model.RoleUser, 4)
	require.NoError(t, err)
	return id
}

// seedShowtime creates a movie and a showtime starting at start with the
// given seat labels, and returns the showtime and its seats by label.
func seedShowtime(t *testing.T, db *database.DB, start time.Time, labels ...string) (*model.Showtime, map[string]model.Seat) {
	t.Helper()
	ctx := context.Background()
	m := &model.Movie{Title: "Heat", Genre: "Crime"}
	require.NoError(t, NewMovieRepo(db).Create(ctx, m))
	st, seats, err := NewShowtimeRepo(db).Create(ctx, m.ID, start, labels)
	require.NoError(t, err)
	byLabel := make(map[string]model.Seat, len(seats))
	for _, s := range seats {
		byLabel[s.SeatNumber] = s
	}
	return st, byLabel
}

func seatReserved(t *testing.T, db *database.DB, id uint64) bool {
	t.Helper()
	seats, err := NewShowtimeRepo(db).FindSeatsByIDs(context.Background(), []uint64{id})
	require.NoError(t, err)
	require.Len(t, seats, 1)
	return seats[0].IsReserved
}
