package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimSeats_ClaimsAll(t *testing.T) {
	db := openTestDB(t)
	st, seats := seedShowtime(t, db, time.Now().Add(24*time.Hour), "A1", "A2", "B1")
	ledger := NewSeatLedger(db)

	claimed, err := ledger.ClaimSeats(context.Background(), st.ID, []uint64{seats["A1"].ID, seats["A2"].ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{seats["A1"].ID, seats["A2"].ID}, claimed)
	assert.True(t, seatReserved(t, db, seats["A1"].ID))
	assert.True(t, seatReserved(t, db, seats["A2"].ID))
	assert.False(t, seatReserved(t, db, seats["B1"].ID))
}

func TestClaimSeats_ConflictNamesUnavailableSubsetAndChangesNothing(t *testing.T) {
	db := openTestDB(t)
	st, seats := seedShowtime(t, db, time.Now().Add(24*time.Hour), "A1", "A2", "B1")
	ledger := NewSeatLedger(db)
	ctx := context.Background()

	_, err := ledger.ClaimSeats(ctx, st.ID, []uint64{seats["B1"].ID})
	require.NoError(t, err)

	_, err = ledger.ClaimSeats(ctx, st.ID, []uint64{seats["A1"].ID, seats["A2"].ID, seats["B1"].ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeatConflict)
	var conflict *SeatConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, st.ID, conflict.ShowtimeID)
	assert.Equal(t, []uint64{seats["B1"].ID}, conflict.SeatIDs)

	assert.False(t, seatReserved(t, db, seats["A1"].ID))
	assert.False(t, seatReserved(t, db, seats["A2"].ID))
}

func TestClaimSeats_SeatOfAnotherShowtimeOrMissing(t *testing.T) {
	db := openTestDB(t)
	st1, seats1 := seedShowtime(t, db, time.Now().Add(24*time.Hour), "A1")
	_, seats2 := seedShowtime(t, db, time.Now().Add(48*time.Hour), "A1")
	ledger := NewSeatLedger(db)

	_, err := ledger.ClaimSeats(context.Background(), st1.ID, []uint64{seats1["A1"].ID, seats2["A1"].ID, 9999})
	var conflict *SeatConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []uint64{seats2["A1"].ID, 9999}, conflict.SeatIDs)
	assert.False(t, seatReserved(t, db, seats1["A1"].ID))
}

func TestClaimSeats_EmptySet(t *testing.T) {
	db := openTestDB(t)
	_, err := NewSeatLedger(db).ClaimSeats(context.Background(), 1, nil)
	assert.Error(t, err)
}

func TestClaimSeats_AtMostOneClaimant(t *testing.T) {
	db := openTestDB(t)
	st, seats := seedShowtime(t, db, time.Now().Add(24*time.Hour), "A1", "A2", "A3")
	ledger := NewSeatLedger(db)
	contested := []uint64{seats["A1"].ID, seats["A2"].ID}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.ClaimSeats(context.Background(), st.ID, contested)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSeatConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.False(t, seatReserved(t, db, seats["A3"].ID))
}

func TestReleaseSeats_Idempotent(t *testing.T) {
	db := openTestDB(t)
	st, seats := seedShowtime(t, db, time.Now().Add(24*time.Hour), "A1")
	ledger := NewSeatLedger(db)
	ctx := context.Background()
	id := seats["A1"].ID

	_, err := ledger.ClaimSeats(ctx, st.ID, []uint64{id})
	require.NoError(t, err)

	require.NoError(t, ledger.ReleaseSeats(ctx, []uint64{id}))
	assert.False(t, seatReserved(t, db, id))
	require.NoError(t, ledger.ReleaseSeats(ctx, []uint64{id}))
	assert.False(t, seatReserved(t, db, id))
	require.NoError(t, ledger.ReleaseSeats(ctx, nil))

	_, err = ledger.ClaimSeats(ctx, st.ID, []uint64{id})
	assert.NoError(t, err, "released seat is claimable again")
}

func TestSeatConflictError_Message(t *testing.T) {
	err := &SeatConflictError{ShowtimeID: 7, SeatIDs: []uint64{3, 4}}
	assert.Equal(t, "seats unavailable for showtime 7: [3,4]", err.Error())
}
