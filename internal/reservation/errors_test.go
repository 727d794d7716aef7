package reservation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", newError(KindSeatUnavailable, "taken", nil))
	assert.ErrorIs(t, err, ErrSeatUnavailable)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.Equal(t, KindSeatUnavailable, KindOf(err))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := newError(KindStorage, "lookup failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage_error: lookup failed: driver: bad connection", err.Error())
	assert.Equal(t, "invalid_request: nope", newError(KindInvalidRequest, "nope", nil).Error())
}

func TestError_Retriable(t *testing.T) {
	for kind, want := range map[Kind]bool{
		KindReservationFailed:        true,
		KindStorage:                  true,
		KindSeatUnavailable:          false,
		KindInvalidRequest:           false,
		KindCancellationWindowClosed: false,
	} {
		assert.Equal(t, want, (&Error{Kind: kind}).Retriable(), kind)
	}
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindStorage, KindOf(errors.New("boom")))
}

func TestCutoffPolicy(t *testing.T) {
	now := time.Date(2030, 1, 1, 20, 0, 0, 0, time.UTC)
	st := func(d time.Duration) model.Showtime { return model.Showtime{StartTime: now.Add(d)} }

	p := CutoffPolicy{}
	assert.True(t, p.IsCancellable(st(time.Second), now))
	assert.False(t, p.IsCancellable(st(0), now))
	assert.False(t, p.IsCancellable(st(-time.Second), now))

	lead := CutoffPolicy{Lead: 15 * time.Minute}
	assert.True(t, lead.IsCancellable(st(16*time.Minute), now))
	assert.False(t, lead.IsCancellable(st(15*time.Minute), now))
}
