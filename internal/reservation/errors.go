package reservation

import (
	"errors"
	"fmt"
)

// Kind classifies reservation failures.  The string value is stable and is
// sent to clients as the "error" field.
type Kind string

const (
	KindInvalidRequest           Kind = "invalid_request"
	KindShowtimeNotFound         Kind = "showtime_not_found"
	KindReservationNotFound      Kind = "reservation_not_found"
	KindSeatUnavailable          Kind = "seat_unavailable"
	KindCancellationWindowClosed Kind = "cancellation_window_closed"
	KindReservationFailed        Kind = "reservation_failed"
	KindStorage                  Kind = "storage_error"
	KindDuplicateClaim           Kind = "duplicate_claim"
)

// Error is the error type returned by the Coordinator.  SeatIDs is set for
// KindSeatUnavailable and names the seats that could not be claimed.
type Error struct {
	Kind    Kind
	Message string
	SeatIDs []uint64
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retriable reports whether the caller may retry the whole operation.
func (e *Error) Retriable() bool {
	return e.Kind == KindReservationFailed || e.Kind == KindStorage
}

var (
	ErrInvalidRequest           = &Error{Kind: KindInvalidRequest}
	ErrShowtimeNotFound         = &Error{Kind: KindShowtimeNotFound}
	ErrReservationNotFound      = &Error{Kind: KindReservationNotFound}
	ErrSeatUnavailable          = &Error{Kind: KindSeatUnavailable}
	ErrCancellationWindowClosed = &Error{Kind: KindCancellationWindowClosed}
	ErrReservationFailed        = &Error{Kind: KindReservationFailed}
	ErrStorage                  = &Error{Kind: KindStorage}
	ErrDuplicateClaim           = &Error{Kind: KindDuplicateClaim}
)

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindStorage for errors that did not come from the Coordinator.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}
