// Package reservation implements the seat reservation engine: all-or-nothing
// seat claims with compensating rollback, per-user listing, and
// cancellation gated by a cutoff policy.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/metrics"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
	"github.com/iliyamo/movie-ticket-reservation/internal/queue"
	"github.com/iliyamo/movie-ticket-reservation/internal/repository"
)

// SeatLedger owns seat availability.  ClaimSeats is atomic over the whole
// set and reports unavailable seats as *repository.SeatConflictError.
type SeatLedger interface {
	ClaimSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error)
	ReleaseSeats(ctx context.Context, seatIDs []uint64) error
}

// RecordStore persists one reservation record per seat.
type RecordStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	DeleteByID(ctx context.Context, id uint64) error
	FindByID(ctx context.Context, id, ownerID uint64) (*model.Reservation, error)
	FindDetailByID(ctx context.Context, id, ownerID uint64) (*model.ReservationDetail, error)
	FindAllByUser(ctx context.Context, userID uint64) ([]model.ReservationDetail, error)
}

// Catalog is the read-only showtime view.
type Catalog interface {
	FindShowtimeByID(ctx context.Context, id uint64) (*model.Showtime, error)
	FindSeatsByIDs(ctx context.Context, ids []uint64) ([]model.Seat, error)
}

// Transactor runs fn in a transaction that ledger and record store join
// through the context.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives reservation events.  Publish must not block.
type Notifier interface {
	Publish(ev queue.ReservationEvent)
}

type noopNotifier struct{}

func (noopNotifier) Publish(queue.ReservationEvent) {}

// Confirmation is returned by a successful cancellation.
type Confirmation struct {
	ReservationID uint64    `json:"reservation_id"`
	ShowtimeID    uint64    `json:"showtime_id"`
	SeatID        uint64    `json:"seat_id"`
	CancelledAt   time.Time `json:"cancelled_at"`
	Message       string    `json:"message"`
}

// Coordinator drives reservations and cancellations.  It holds no locks of
// its own; atomicity of a claim comes from the ledger.
type Coordinator struct {
	ledger  SeatLedger
	records RecordStore
	catalog Catalog
	tx      Transactor
	policy  Policy
	notify  Notifier
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy replaces the default CutoffPolicy{}.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithNotifier sets the event sink.  Without one events are discarded.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notify = n }
}

// NewCoordinator wires the engine.  All dependencies must be non-nil.
func NewCoordinator(ledger SeatLedger, records RecordStore, catalog Catalog, tx Transactor, opts ...Option) *Coordinator {
	if ledger == nil || records == nil || catalog == nil || tx == nil {
		panic("nil dependency passed to NewCoordinator")
	}
	c := &Coordinator{
		ledger:  ledger,
		records: records,
		catalog: catalog,
		tx:      tx,
		policy:  CutoffPolicy{},
		notify:  noopNotifier{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReserveSeats claims every seat in seatIDs for userID on showtimeID and
// writes one record per seat.  Either all seats end up reserved by this call
// or none do.
//
// Once the ledger claim has committed the rest of the operation no longer
// follows ctx cancellation: the records are written (or compensated) even
// if the caller goes away.
func (c *Coordinator) ReserveSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID uint64) ([]model.Reservation, error) {
	log := logging.Ctx(ctx).With().
		Str("op", "reserve").
		Uint64("showtime_id", showtimeID).
		Uint64("user_id", userID).
		Uints64("seat_ids", seatIDs).
		Logger()

	if msg := validateReserve(showtimeID, seatIDs, userID); msg != "" {
		return nil, c.fail(&log, newError(KindInvalidRequest, msg, nil))
	}

	st, err := c.catalog.FindShowtimeByID(ctx, showtimeID)
	if err != nil {
		if errors.Is(err, repository.ErrShowtimeNotFound) {
			return nil, c.fail(&log, newError(KindShowtimeNotFound, "showtime not found", err))
		}
		return nil, c.fail(&log, newError(KindStorage, "showtime lookup failed", err))
	}

	claimed, err := c.ledger.ClaimSeats(ctx, showtimeID, seatIDs)
	if err != nil {
		var conflict *repository.SeatConflictError
		if errors.As(err, &conflict) {
			metrics.SeatConflicts.Inc()
			e := newError(KindSeatUnavailable, "some seats are not available or do not exist", err)
			e.SeatIDs = conflict.SeatIDs
			return nil, c.fail(&log, e)
		}
		return nil, c.fail(&log, newError(KindStorage, "seat claim failed", err))
	}

	// the claim is committed; finish or compensate regardless of the caller
	ctx = context.WithoutCancel(ctx)
	now := c.now()
	records := make([]model.Reservation, 0, len(claimed))
	for _, seatID := range claimed {
		r := model.Reservation{UserID: userID, ShowtimeID: showtimeID, SeatID: seatID, ReservationTime: now}
		if err := c.records.Create(ctx, &r); err != nil {
			return nil, c.fail(&log, c.compensate(ctx, &log, claimed, records, seatID, err))
		}
		records = append(records, r)
	}

	metrics.SeatsReserved.Add(float64(len(records)))
	log.Info().Int("seats", len(records)).Msg("seats reserved")

	ev := queue.NewReservationEvent(queue.EventReservationCreated, now)
	ev.ReservationIDs = make([]uint64, len(records))
	for i, r := range records {
		ev.ReservationIDs[i] = r.ID
	}
	c.publish(ctx, &log, ev, userID, st, claimed)
	return records, nil
}

// compensate undoes a partially written reservation: records written by
// this call are deleted and the claimed seats released.  A seat whose
// insert failed with a duplicate claim stays reserved because another live
// record owns it.
func (c *Coordinator) compensate(ctx context.Context, log *zerolog.Logger, claimed []uint64, written []model.Reservation, failedSeat uint64, cause error) *Error {
	duplicate := errors.Is(cause, repository.ErrDuplicateClaim)
	if duplicate {
		metrics.DuplicateClaims.Inc()
		log.Error().Err(cause).Uint64("seat_id", failedSeat).
			Msg("integrity violation: seat claimed by ledger already has a live reservation")
		cause = newError(KindDuplicateClaim, "seat already has a live reservation", cause)
	}

	var errs []error
	for _, r := range written {
		if err := c.records.DeleteByID(ctx, r.ID); err != nil && !errors.Is(err, repository.ErrReservationNotFound) {
			errs = append(errs, fmt.Errorf("delete reservation %d: %w", r.ID, err))
		}
	}
	release := claimed
	if duplicate {
		release = make([]uint64, 0, len(claimed))
		for _, id := range claimed {
			if id != failedSeat {
				release = append(release, id)
			}
		}
	}
	if err := c.ledger.ReleaseSeats(ctx, release); err != nil {
		errs = append(errs, fmt.Errorf("release seats: %w", err))
	}

	if len(errs) > 0 {
		metrics.Compensations.WithLabelValues("failed").Inc()
		log.Error().Err(errors.Join(errs...)).Msg("compensation incomplete; seats may need manual release")
	} else {
		metrics.Compensations.WithLabelValues("ok").Inc()
		log.Warn().Err(cause).Int("released", len(release)).Msg("reservation rolled back")
	}
	return newError(KindReservationFailed, "reservation could not be completed", errors.Join(append([]error{cause}, errs...)...))
}

// GetReservations lists the user's reservations with showtime and seat.
func (c *Coordinator) GetReservations(ctx context.Context, userID uint64) ([]model.ReservationDetail, error) {
	if userID == 0 {
		return nil, newError(KindInvalidRequest, "user id is required", nil)
	}
	list, err := c.records.FindAllByUser(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Uint64("user_id", userID).Msg("list reservations failed")
		return nil, newError(KindStorage, "could not load reservations", err)
	}
	return list, nil
}

// GetReservation returns one of the user's reservations.  Reservations of
// other users are reported as not found.
func (c *Coordinator) GetReservation(ctx context.Context, reservationID, userID uint64) (*model.ReservationDetail, error) {
	if reservationID == 0 || userID == 0 {
		return nil, newError(KindInvalidRequest, "reservation id and user id are required", nil)
	}
	d, err := c.records.FindDetailByID(ctx, reservationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, newError(KindReservationNotFound, "reservation not found", err)
		}
		return nil, newError(KindStorage, "could not load reservation", err)
	}
	return d, nil
}

// CancelReservation deletes the user's reservation and releases its seat in
// one transaction, provided the policy still allows cancellation.
func (c *Coordinator) CancelReservation(ctx context.Context, reservationID, userID uint64) (*Confirmation, error) {
	log := logging.Ctx(ctx).With().
		Str("op", "cancel").
		Uint64("reservation_id", reservationID).
		Uint64("user_id", userID).
		Logger()

	if reservationID == 0 || userID == 0 {
		return nil, c.cancelFail(&log, "error", newError(KindInvalidRequest, "reservation id and user id are required", nil))
	}

	res, err := c.records.FindByID(ctx, reservationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, c.cancelFail(&log, "not_found", newError(KindReservationNotFound, "reservation not found", err))
		}
		return nil, c.cancelFail(&log, "error", newError(KindStorage, "reservation lookup failed", err))
	}

	st, err := c.catalog.FindShowtimeByID(ctx, res.ShowtimeID)
	if err != nil {
		return nil, c.cancelFail(&log, "error", newError(KindStorage, "showtime lookup failed", err))
	}
	now := c.now()
	if !c.policy.IsCancellable(*st, now) {
		return nil, c.cancelFail(&log, "window_closed",
			newError(KindCancellationWindowClosed, "cannot cancel past reservations", nil))
	}

	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := c.records.DeleteByID(ctx, res.ID); err != nil {
			return err
		}
		if err := c.ledger.ReleaseSeats(ctx, []uint64{res.SeatID}); err != nil {
			return fmt.Errorf("seat release failed: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			// cancelled concurrently by another request
			return nil, c.cancelFail(&log, "not_found", newError(KindReservationNotFound, "reservation not found", err))
		}
		log.Error().Err(err).Uint64("seat_id", res.SeatID).Msg("cancellation rolled back")
		return nil, c.cancelFail(&log, "error", newError(KindStorage, "cancellation failed", err))
	}

	metrics.Cancellations.WithLabelValues("ok").Inc()
	log.Info().Uint64("seat_id", res.SeatID).Msg("reservation cancelled")

	ev := queue.NewReservationEvent(queue.EventReservationCancelled, now)
	ev.ReservationIDs = []uint64{res.ID}
	c.publish(context.WithoutCancel(ctx), &log, ev, userID, st, []uint64{res.SeatID})

	return &Confirmation{
		ReservationID: res.ID,
		ShowtimeID:    res.ShowtimeID,
		SeatID:        res.SeatID,
		CancelledAt:   now,
		Message:       "Reservation canceled",
	}, nil
}

func (c *Coordinator) publish(ctx context.Context, log *zerolog.Logger, ev queue.ReservationEvent, userID uint64, st *model.Showtime, seatIDs []uint64) {
	ev.UserID = userID
	ev.ShowtimeID = st.ID
	ev.MovieID = st.MovieID
	ev.StartsAt = st.StartTime.UTC().Format(time.RFC3339)
	ev.SeatIDs = seatIDs
	if seats, err := c.catalog.FindSeatsByIDs(ctx, seatIDs); err == nil {
		for _, s := range seats {
			ev.SeatNumbers = append(ev.SeatNumbers, s.SeatNumber)
		}
	} else {
		log.Warn().Err(err).Msg("seat labels unavailable for event")
	}
	c.notify.Publish(ev)
}

func (c *Coordinator) fail(log *zerolog.Logger, e *Error) *Error {
	metrics.ReservationFailures.WithLabelValues(string(e.Kind)).Inc()
	switch e.Kind {
	case KindStorage, KindReservationFailed:
		log.Error().Err(e).Msg("reservation failed")
	default:
		log.Info().Str("kind", string(e.Kind)).Uints64("unavailable", e.SeatIDs).Msg("reservation rejected")
	}
	return e
}

func (c *Coordinator) cancelFail(log *zerolog.Logger, result string, e *Error) *Error {
	metrics.Cancellations.WithLabelValues(result).Inc()
	if e.Kind == KindStorage {
		log.Error().Err(e).Msg("cancellation failed")
	} else {
		log.Info().Str("kind", string(e.Kind)).Msg("cancellation rejected")
	}
	return e
}

func validateReserve(showtimeID uint64, seatIDs []uint64, userID uint64) string {
	switch {
	case userID == 0:
		return "user id is required"
	case showtimeID == 0:
		return "showtime id is required"
	case len(seatIDs) == 0:
		return "at least one seat is required"
	}
	seen := make(map[uint64]bool, len(seatIDs))
	for _, id := range seatIDs {
		if id == 0 {
			return "seat ids must be positive"
		}
		if seen[id] {
			return fmt.Sprintf("duplicate seat id %d", id)
		}
		seen[id] = true
	}
	return ""
}
