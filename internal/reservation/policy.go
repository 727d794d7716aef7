package reservation

import (
	"time"

	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

// Policy decides whether a reservation for a showtime may still be
// cancelled at a given instant.
type Policy interface {
	IsCancellable(st model.Showtime, now time.Time) bool
}

// CutoffPolicy allows cancellation while the showtime starts strictly after
// now + Lead.  The zero value closes cancellation at the start time itself.
type CutoffPolicy struct {
	Lead time.Duration
}

func (p CutoffPolicy) IsCancellable(st model.Showtime, now time.Time) bool {
	return st.StartTime.After(now.Add(p.Lead))
}
