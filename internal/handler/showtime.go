package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
	"github.com/iliyamo/movie-ticket-reservation/internal/repository"
)

// maxSeatsPerShowtime caps seat provisioning for a single showtime.
const maxSeatsPerShowtime = 2000

// ShowtimeHandler serves showtimes and their seat maps.  Listing and seat
// maps are public; creating, deleting and the per-showtime reservation
// view are admin-only.
type ShowtimeHandler struct {
	Showtimes    *repository.ShowtimeRepo
	Reservations *repository.ReservationRepo
}

func NewShowtimeHandler(st *repository.ShowtimeRepo, res *repository.ReservationRepo) *ShowtimeHandler {
	if st == nil || res == nil {
		panic("nil repository passed to NewShowtimeHandler")
	}
	return &ShowtimeHandler{Showtimes: st, Reservations: res}
}

// createShowtimeReq provisions seats either from an explicit list of seat
// numbers or from a rows x seats_per_row grid (A1, A2, ..., B1, ...).
type createShowtimeReq struct {
	MovieID     uint64    `json:"movie_id" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	Seats       []string  `json:"seats" validate:"omitempty,unique,dive,required,max=10"`
	Rows        int       `json:"rows" validate:"gte=0,lte=702"`
	SeatsPerRow int       `json:"seats_per_row" validate:"gte=0,lte=500"`
}

func (r createShowtimeReq) seatNumbers() ([]string, string) {
	switch {
	case len(r.Seats) > 0 && r.Rows > 0:
		return nil, "give either seats or rows/seats_per_row, not both"
	case len(r.Seats) > 0:
		out := make([]string, len(r.Seats))
		for i, s := range r.Seats {
			out[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		return out, ""
	case r.Rows > 0 && r.SeatsPerRow > 0:
		if r.Rows*r.SeatsPerRow > maxSeatsPerShowtime {
			return nil, "too many seats"
		}
		return repository.SeatGrid(r.Rows, r.SeatsPerRow), ""
	}
	return nil, "seats or rows and seats_per_row are required"
}

type showtimeResp struct {
	model.Showtime
	Seats []model.Seat `json:"seats"`
}

// Create handles POST /showtimes.
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var req createShowtimeReq
	if msg, ok := bindAndValidate(c, &req); !ok {
		return badRequest(c, msg)
	}
	seats, msg := req.seatNumbers()
	if msg != "" {
		return badRequest(c, msg)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	st, provisioned, err := h.Showtimes.Create(ctx, req.MovieID, req.StartTime, seats)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrMovieNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "movie_not_found", "message": "movie not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "duplicate seat number"})
		}
		logging.Ctx(ctx).Error().Err(err).Uint64("movie_id", req.MovieID).Msg("create showtime failed")
		return internalError(c, "could not create showtime")
	}
	logging.Ctx(ctx).Info().Uint64("showtime_id", st.ID).Int("seats", len(provisioned)).Msg("showtime created")
	return c.JSON(http.StatusCreated, showtimeResp{Showtime: *st, Seats: provisioned})
}

// ListByMovie handles GET /movies/:id/showtimes.
func (h *ShowtimeHandler) ListByMovie(c echo.Context) error {
	movieID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	items, err := h.Showtimes.ListByMovie(ctx, movieID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("list showtimes failed")
		return internalError(c, "could not load showtimes")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /showtimes/:id.
func (h *ShowtimeHandler) Get(c echo.Context) error {
	st, ok, err := h.load(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// Seats handles GET /showtimes/:id/seats: the seat map with availability.
func (h *ShowtimeHandler) Seats(c echo.Context) error {
	st, ok, err := h.load(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	seats, err := h.Showtimes.ListSeats(ctx, st.ID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Uint64("showtime_id", st.ID).Msg("list seats failed")
		return internalError(c, "could not load seats")
	}
	available := 0
	for _, s := range seats {
		if !s.IsReserved {
			available++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"showtime_id": st.ID,
		"total":       len(seats),
		"available":   available,
		"items":       seats,
	})
}

// Delete handles DELETE /showtimes/:id.
func (h *ShowtimeHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Showtimes.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrShowtimeNotFound):
			return showtimeNotFound(c)
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "showtime has reservations"})
		}
		logging.Ctx(ctx).Error().Err(err).Uint64("showtime_id", id).Msg("delete showtime failed")
		return internalError(c, "could not delete showtime")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListReservations handles GET /showtimes/:id/reservations (admin): every live
// reservation of the showtime ordered by seat.
func (h *ShowtimeHandler) ListReservations(c echo.Context) error {
	st, ok, err := h.load(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	items, err := h.Reservations.ListByShowtime(ctx, st.ID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Uint64("showtime_id", st.ID).Msg("list showtime reservations failed")
		return internalError(c, "could not load reservations")
	}
	return c.JSON(http.StatusOK, echo.Map{"showtime_id": st.ID, "items": items})
}

// load resolves the :id showtime.  When ok is false the response has been
// written and err is what the handler should return.
func (h *ShowtimeHandler) load(c echo.Context) (*model.Showtime, bool, error) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false, badRequest(c, "invalid showtime id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	st, err := h.Showtimes.FindShowtimeByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrShowtimeNotFound) {
			return nil, false, showtimeNotFound(c)
		}
		logging.Ctx(ctx).Error().Err(err).Uint64("showtime_id", id).Msg("load showtime failed")
		return nil, false, internalError(c, "could not load showtime")
	}
	return st, true, nil
}

func showtimeNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime_not_found", "message": "showtime not found"})
}
