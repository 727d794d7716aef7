package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-reservation/internal/model"
	"github.com/iliyamo/movie-ticket-reservation/internal/reservation"
)

// ReservationService is the reservation engine as seen by HTTP.
type ReservationService interface {
	ReserveSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID uint64) ([]model.Reservation, error)
	GetReservations(ctx context.Context, userID uint64) ([]model.ReservationDetail, error)
	GetReservation(ctx context.Context, reservationID, userID uint64) (*model.ReservationDetail, error)
	CancelReservation(ctx context.Context, reservationID, userID uint64) (*reservation.Confirmation, error)
}

// ReservationHandler exposes the reservation engine to authenticated
// users.  Every operation is scoped to the caller: reservations of other
// users are reported as not found.
type ReservationHandler struct {
	Svc ReservationService
}

func NewReservationHandler(svc ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc}
}

type reserveReq struct {
	ShowtimeID uint64   `json:"showtime_id" validate:"required"`
	SeatIDs    []uint64 `json:"seat_ids" validate:"required,min=1,max=50,unique,dive,required"`
}

// Reserve handles POST /reservations/reserve.  Either every requested
// seat is reserved (201 with one record per seat) or none is.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req reserveReq
	if msg, ok := bindAndValidate(c, &req); !ok {
		return badRequest(c, msg)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	records, err := h.Svc.ReserveSeats(ctx, req.ShowtimeID, req.SeatIDs, userID)
	if err != nil {
		return writeReservationError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"items": records})
}

// List handles GET /reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Svc.GetReservations(ctx, userID)
	if err != nil {
		return writeReservationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	item, err := h.Svc.GetReservation(ctx, id, userID)
	if err != nil {
		return writeReservationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": item})
}

// Cancel handles DELETE /reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	conf, err := h.Svc.CancelReservation(ctx, id, userID)
	if err != nil {
		return writeReservationError(c, err)
	}
	return c.JSON(http.StatusOK, conf)
}

// writeReservationError maps engine errors to HTTP.  The body carries the
// stable kind and a human message; driver details never leave the server.
func writeReservationError(c echo.Context, err error) error {
	var rerr *reservation.Error
	if !errors.As(err, &rerr) {
		return internalError(c, "unexpected error")
	}
	status := http.StatusInternalServerError
	switch rerr.Kind {
	case reservation.KindInvalidRequest:
		status = http.StatusBadRequest
	case reservation.KindShowtimeNotFound, reservation.KindReservationNotFound:
		status = http.StatusNotFound
	case reservation.KindSeatUnavailable, reservation.KindCancellationWindowClosed:
		status = http.StatusConflict
	}
	body := echo.Map{"error": string(rerr.Kind), "message": rerr.Message}
	if rerr.Kind == reservation.KindSeatUnavailable {
		body["unavailable"] = rerr.SeatIDs
	}
	if rerr.Retriable() {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, body)
}
