package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-reservation/internal/database"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
	"github.com/iliyamo/movie-ticket-reservation/internal/queue"
	"github.com/iliyamo/movie-ticket-reservation/internal/repository"
)

type env struct {
	db        *database.DB
	ledger    *repository.SeatLedger
	records   *repository.ReservationRepo
	showtimes *repository.ShowtimeRepo
	users     *repository.UserRepo
	alice     uint64
	bob       uint64
	st        *model.Showtime
	seats     map[string]uint64
	now       time.Time
}

// newEnv builds a SQLite-backed engine with showtime S1 (seats A1, A2, B1)
// starting one day after the fixed clock.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.SQLite,
		database.SQLiteDSN("file:"+uuid.NewString()+"?mode=memory&cache=shared"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	e := &env{
		db:        db,
		ledger:    repository.NewSeatLedger(db),
		records:   repository.NewReservationRepo(db),
		showtimes: repository.NewShowtimeRepo(db),
		users:     repository.NewUserRepo(db),
		now:       time.Now().UTC().Truncate(time.Second),
	}
	e.alice = e.addUser(t, "alice")
	e.bob = e.addUser(t, "bob")

	m := &model.Movie{Title: "Heat"}
	require.NoError(t, repository.NewMovieRepo(db).Create(ctx, m))
	st, seats, err := e.showtimes.Create(ctx, m.ID, e.now.Add(24*time.Hour), []string{"A1", "A2", "B1"})
	require.NoError(t, err)
	e.st = st
	e.seats = make(map[string]uint64, len(seats))
	for _, s := range seats {
		e.seats[s.SeatNumber] = s.ID
	}
	return e
}

func (e *env) addUser(t *testing.T, name string) uint64 {
	t.Helper()
	id, err := e.users.Create(context.Background(), name, "pw", model.RoleUser, 4)
	require.NoError(t, err)
	return id
}

func (e *env) coordinator(opts ...Option) *Coordinator {
	return e.coordinatorWith(e.ledger, e.records, opts...)
}

func (e *env) coordinatorWith(ledger SeatLedger, records RecordStore, opts ...Option) *Coordinator {
	all := append([]Option{WithClock(func() time.Time { return e.now })}, opts...)
	return NewCoordinator(ledger, records, e.showtimes, e.db, all...)
}

func (e *env) ids(labels ...string) []uint64 {
	out := make([]uint64, len(labels))
	for i, l := range labels {
		out[i] = e.seats[l]
	}
	return out
}

func (e *env) reserved(t *testing.T, label string) bool {
	t.Helper()
	seats, err := e.showtimes.FindSeatsByIDs(context.Background(), []uint64{e.seats[label]})
	require.NoError(t, err)
	require.Len(t, seats, 1)
	return seats[0].IsReserved
}

func (e *env) countReservations(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM reservations`).Scan(&n))
	return n
}

// flakyRecords fails the n-th Create (1-based) with err.
type flakyRecords struct {
	RecordStore
	failOn  int
	creates int
	err     error
}

func (f *flakyRecords) Create(ctx context.Context, r *model.Reservation) error {
	f.creates++
	if f.creates == f.failOn {
		return f.err
	}
	return f.RecordStore.Create(ctx, r)
}

type failingList struct {
	RecordStore
}

func (failingList) FindAllByUser(context.Context, uint64) ([]model.ReservationDetail, error) {
	return nil, errors.New("connection reset")
}

// hookedLedger runs afterClaim after a successful claim and can fail
// releases.
type hookedLedger struct {
	SeatLedger
	afterClaim func()
	releaseErr error
}

func (h *hookedLedger) ClaimSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
	ids, err := h.SeatLedger.ClaimSeats(ctx, showtimeID, seatIDs)
	if err == nil && h.afterClaim != nil {
		h.afterClaim()
	}
	return ids, err
}

func (h *hookedLedger) ReleaseSeats(ctx context.Context, seatIDs []uint64) error {
	if h.releaseErr != nil {
		return h.releaseErr
	}
	return h.SeatLedger.ReleaseSeats(ctx, seatIDs)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (c *captureNotifier) Publish(ev queue.ReservationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestReserveSeats_RoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := &captureNotifier{}
	c := e.coordinator(WithNotifier(n))

	records, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1", "A2"), e.alice)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotZero(t, r.ID)
		assert.Equal(t, e.alice, r.UserID)
		assert.Equal(t, e.st.ID, r.ShowtimeID)
		assert.True(t, r.ReservationTime.Equal(e.now))
	}
	assert.True(t, e.reserved(t, "A1"))
	assert.True(t, e.reserved(t, "A2"))

	list, err := c.GetReservations(ctx, e.alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Heat", list[0].Showtime.MovieTitle)

	conf, err := c.CancelReservation(ctx, records[0].ID, e.alice)
	require.NoError(t, err)
	assert.Equal(t, records[0].ID, conf.ReservationID)
	assert.Equal(t, records[0].SeatID, conf.SeatID)
	assert.Equal(t, "Reservation canceled", conf.Message)
	assert.False(t, e.reserved(t, "A1"))
	assert.True(t, e.reserved(t, "A2"))

	list, err = c.GetReservations(ctx, e.alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, records[1].ID, list[0].ID)

	require.Len(t, n.events, 2)
	assert.Equal(t, queue.EventReservationCreated, n.events[0].Type)
	assert.ElementsMatch(t, []string{"A1", "A2"}, n.events[0].SeatNumbers)
	assert.Equal(t, queue.EventReservationCancelled, n.events[1].Type)
	assert.Equal(t, []uint64{records[0].ID}, n.events[1].ReservationIDs)
}

func TestReserveSeats_PartialConflictReservesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator()

	_, err := c.ReserveSeats(ctx, e.st.ID, e.ids("B1"), e.bob)
	require.NoError(t, err)

	_, err = c.ReserveSeats(ctx, e.st.ID, e.ids("A1", "A2", "B1"), e.alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, e.ids("B1"), rerr.SeatIDs)
	assert.False(t, rerr.Retriable())

	assert.False(t, e.reserved(t, "A1"))
	assert.False(t, e.reserved(t, "A2"))
	list, err := c.GetReservations(ctx, e.alice)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = c.ReserveSeats(ctx, e.st.ID, e.ids("A1", "A2"), e.alice)
	require.NoError(t, err)
	assert.True(t, e.reserved(t, "A1"))
	assert.True(t, e.reserved(t, "A2"))
	assert.True(t, e.reserved(t, "B1"))
}

func TestReserveSeats_ConflictNamesEveryTakenSeat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator()
	carol := e.addUser(t, "carol")

	// B1 is taken before the scenario starts
	_, err := c.ReserveSeats(ctx, e.st.ID, e.ids("B1"), e.bob)
	require.NoError(t, err)
	_, err = c.ReserveSeats(ctx, e.st.ID, e.ids("A1", "A2"), e.alice)
	require.NoError(t, err)

	_, err = c.ReserveSeats(ctx, e.st.ID, e.ids("A2", "B1"), carol)
	require.ErrorIs(t, err, ErrSeatUnavailable)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.ElementsMatch(t, e.ids("A2", "B1"), rerr.SeatIDs)

	list, err := c.GetReservations(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, list)
	mine, err := c.GetReservations(ctx, e.alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Equal(t, 3, e.countReservations(t))
}

func TestReserveSeats_CancelledSeatGoesToAnotherUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator()

	records, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.alice)
	require.NoError(t, err)
	_, err = c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.bob)
	require.ErrorIs(t, err, ErrSeatUnavailable)

	_, err = c.CancelReservation(ctx, records[0].ID, e.alice)
	require.NoError(t, err)

	again, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.bob)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, e.bob, again[0].UserID)
	assert.Equal(t, e.seats["A1"], again[0].SeatID)
	assert.True(t, e.reserved(t, "A1"))

	list, err := c.GetReservations(ctx, e.alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReserveSeats_InvalidRequest(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator()
	tests := []struct {
		name     string
		showtime uint64
		seats    []uint64
		user     uint64
	}{
		{"no seats", e.st.ID, nil, e.alice},
		{"zero seat", e.st.ID, []uint64{0}, e.alice},
		{"duplicate seat", e.st.ID, []uint64{e.seats["A1"], e.seats["A1"]}, e.alice},
		{"zero showtime", 0, e.ids("A1"), e.alice},
		{"zero user", e.st.ID, e.ids("A1"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ReserveSeats(context.Background(), tt.showtime, tt.seats, tt.user)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.False(t, e.reserved(t, "A1"))
}

func TestReserveSeats_ShowtimeNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.coordinator().ReserveSeats(context.Background(), 9999, e.ids("A1"), e.alice)
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
	assert.Equal(t, KindShowtimeNotFound, KindOf(err))
}

func TestReserveSeats_SeatOfOtherShowtime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other, seats, err := e.showtimes.Create(ctx, e.st.MovieID, e.now.Add(48*time.Hour), []string{"A1"})
	require.NoError(t, err)

	_, err = e.coordinator().ReserveSeats(ctx, e.st.ID, []uint64{e.seats["A1"], seats[0].ID}, e.alice)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindSeatUnavailable, rerr.Kind)
	assert.Equal(t, []uint64{seats[0].ID}, rerr.SeatIDs)
	assert.NotEqual(t, e.st.ID, other.ID)
	assert.False(t, e.reserved(t, "A1"))
}

func TestReserveSeats_CompensatesWhenRecordWriteFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	records := &flakyRecords{RecordStore: e.records, failOn: 2, err: errors.New("disk full")}
	c := e.coordinatorWith(e.ledger, records)

	_, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1", "A2", "B1"), e.alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReservationFailed)
	assert.Contains(t, err.Error(), "disk full")
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.Retriable())

	assert.Zero(t, e.countReservations(t))
	for _, l := range []string{"A1", "A2", "B1"} {
		assert.False(t, e.reserved(t, l), l)
	}
}

func TestReserveSeats_CompensationFailureIsReported(t *testing.T) {
	e := newEnv(t)
	records := &flakyRecords{RecordStore: e.records, failOn: 1, err: errors.New("disk full")}
	ledger := &hookedLedger{SeatLedger: e.ledger, releaseErr: errors.New("release timeout")}
	c := e.coordinatorWith(ledger, records)

	_, err := c.ReserveSeats(context.Background(), e.st.ID, e.ids("A1"), e.alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReservationFailed)
	assert.Contains(t, err.Error(), "release timeout")
}

func TestReserveSeats_DuplicateClaimLeavesOwnedSeatReserved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// a live record for B1 that the ledger does not know about
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO reservations (user_id, showtime_id, seat_id, reservation_time) VALUES (?, ?, ?, ?)`,
		e.bob, e.st.ID, e.seats["B1"], e.now)
	require.NoError(t, err)

	_, err = e.coordinator().ReserveSeats(ctx, e.st.ID, e.ids("A1", "B1"), e.alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReservationFailed)
	assert.ErrorIs(t, err, ErrDuplicateClaim)
	assert.ErrorIs(t, err, repository.ErrDuplicateClaim)
	assert.Equal(t, KindReservationFailed, KindOf(err))

	assert.False(t, e.reserved(t, "A1"))
	assert.True(t, e.reserved(t, "B1"), "seat owned by the existing record stays reserved")
	aliceList, err := e.records.FindAllByUser(ctx, e.alice)
	require.NoError(t, err)
	assert.Empty(t, aliceList)
	bobList, err := e.records.FindAllByUser(ctx, e.bob)
	require.NoError(t, err)
	assert.Len(t, bobList, 1)
}

func TestReserveSeats_CallerCancellationAfterClaimDoesNotUndo(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger := &hookedLedger{SeatLedger: e.ledger, afterClaim: cancel}

	records, err := e.coordinatorWith(ledger, e.records).ReserveSeats(ctx, e.st.ID, e.ids("A1", "A2"), e.alice)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 2, e.countReservations(t))
}

func TestReserveSeats_ConcurrentOverlapAtMostOneClaimant(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator()
	const workers = 8
	users := make([]uint64, workers)
	for i := range users {
		users[i] = e.addUser(t, fmt.Sprintf("user%d", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []uint64
		rejected int
	)
	start := make(chan struct{})
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			<-start
			_, err := c.ReserveSeats(context.Background(), e.st.ID, e.ids("A1", "A2"), uid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, uid)
			case errors.Is(err, ErrSeatUnavailable):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uid)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, 2, e.countReservations(t))
	list, err := c.GetReservations(context.Background(), winners[0])
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReserveSeats_ConcurrentDisjointAllSucceed(t *testing.T) {
	e := newEnv(t)
	c := e.coordinator()
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, l := range []string{"A1", "A2", "B1"} {
		wg.Add(1)
		go func(i int, l string) {
			defer wg.Done()
			_, errs[i] = c.ReserveSeats(context.Background(), e.st.ID, e.ids(l), e.alice)
		}(i, l)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 3, e.countReservations(t))
}

func TestGetReservations_StorageError(t *testing.T) {
	e := newEnv(t)
	c := e.coordinatorWith(e.ledger, failingList{e.records})

	_, err := c.GetReservations(context.Background(), e.alice)
	assert.ErrorIs(t, err, ErrStorage)

	_, err = c.GetReservations(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetReservation_Ownership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator()
	records, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.alice)
	require.NoError(t, err)

	d, err := c.GetReservation(ctx, records[0].ID, e.alice)
	require.NoError(t, err)
	assert.Equal(t, "A1", d.Seat.SeatNumber)

	_, err = c.GetReservation(ctx, records[0].ID, e.bob)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCancelReservation_OtherUserSeesNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator()
	records, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.alice)
	require.NoError(t, err)

	_, err = c.CancelReservation(ctx, records[0].ID, e.bob)
	assert.ErrorIs(t, err, ErrReservationNotFound)
	_, err = c.CancelReservation(ctx, 424242, e.alice)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	assert.True(t, e.reserved(t, "A1"))
	list, err := c.GetReservations(ctx, e.alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCancelReservation_CutoffEnforced(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration // clock offset relative to start_time
		policy Policy
		ok     bool
	}{
		{"before start", -time.Minute, CutoffPolicy{}, true},
		{"at start", 0, CutoffPolicy{}, false},
		{"after start", time.Hour, CutoffPolicy{}, false},
		{"inside lead", -30 * time.Minute, CutoffPolicy{Lead: time.Hour}, false},
		{"outside lead", -2 * time.Hour, CutoffPolicy{Lead: time.Hour}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			c := e.coordinator(WithPolicy(tt.policy))
			records, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.alice)
			require.NoError(t, err)

			e.now = e.st.StartTime.Add(tt.offset)
			_, err = c.CancelReservation(ctx, records[0].ID, e.alice)
			if tt.ok {
				require.NoError(t, err)
				assert.False(t, e.reserved(t, "A1"))
				return
			}
			assert.ErrorIs(t, err, ErrCancellationWindowClosed)
			assert.True(t, e.reserved(t, "A1"))
			_, err = e.records.FindByID(ctx, records[0].ID, e.alice)
			assert.NoError(t, err, "record survives a rejected cancellation")
		})
	}
}

func TestCancelReservation_ReleaseFailureRollsBackDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	records, err := e.coordinator().ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.alice)
	require.NoError(t, err)

	ledger := &hookedLedger{SeatLedger: e.ledger, releaseErr: errors.New("lock wait timeout")}
	_, err = e.coordinatorWith(ledger, e.records).CancelReservation(ctx, records[0].ID, e.alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "seat release failed")

	_, err = e.records.FindByID(ctx, records[0].ID, e.alice)
	assert.NoError(t, err, "delete rolled back together with the failed release")
	assert.True(t, e.reserved(t, "A1"))
}

func TestCancelReservation_Twice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.coordinator()
	records, err := c.ReserveSeats(ctx, e.st.ID, e.ids("A1"), e.alice)
	require.NoError(t, err)

	_, err = c.CancelReservation(ctx, records[0].ID, e.alice)
	require.NoError(t, err)
	_, err = c.CancelReservation(ctx, records[0].ID, e.alice)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestNewCoordinator_PanicsOnNilDependency(t *testing.T) {
	assert.Panics(t, func() { NewCoordinator(nil, nil, nil, nil) })
}
