package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
	"github.com/iliyamo/movie-ticket-reservation/internal/repository"
	"github.com/iliyamo/movie-ticket-reservation/internal/service"
)

// MovieHandler serves the movie catalog.  Reads are public, writes are
// admin-only (enforced by the router).
type MovieHandler struct {
	Movies *service.MovieCatalog
}

func NewMovieHandler(m *service.MovieCatalog) *MovieHandler {
	return &MovieHandler{Movies: m}
}

type movieReq struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=4000"`
	PosterURL   string `json:"poster_url" validate:"omitempty,url,max=1024"`
	Genre       string `json:"genre" validate:"max=100"`
}

func (r movieReq) toModel() model.Movie {
	return model.Movie{Title: r.Title, Description: r.Description, PosterURL: r.PosterURL, Genre: r.Genre}
}

// List handles GET /movies?genre=.
func (h *MovieHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	movies, err := h.Movies.List(ctx, c.QueryParam("genre"))
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("list movies failed")
		return internalError(c, "could not load movies")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": movies})
}

// Get handles GET /movies/:id.
func (h *MovieHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	m, err := h.Movies.Get(ctx, id)
	if err != nil {
		return h.writeError(c, err, "could not load movie")
	}
	return c.JSON(http.StatusOK, m)
}

// Create handles POST /movies.
func (h *MovieHandler) Create(c echo.Context) error {
	var req movieReq
	if msg, ok := bindAndValidate(c, &req); !ok {
		return badRequest(c, msg)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	m := req.toModel()
	if err := h.Movies.Create(ctx, &m); err != nil {
		return h.writeError(c, err, "could not create movie")
	}
	return c.JSON(http.StatusCreated, m)
}

// Update handles PUT /movies/:id.
func (h *MovieHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	var req movieReq
	if msg, ok := bindAndValidate(c, &req); !ok {
		return badRequest(c, msg)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	m := req.toModel()
	m.ID = id
	if err := h.Movies.Update(ctx, &m); err != nil {
		return h.writeError(c, err, "could not update movie")
	}
	updated, err := h.Movies.Get(ctx, id)
	if err != nil {
		return h.writeError(c, err, "could not load movie")
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /movies/:id.  Movies with reservations cannot be
// deleted.
func (h *MovieHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if err := h.Movies.Delete(ctx, id); err != nil {
		return h.writeError(c, err, "could not delete movie")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *MovieHandler) writeError(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrMovieNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "movie_not_found", "message": "movie not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "movie has reservations"})
	}
	logging.Ctx(c.Request().Context()).Error().Err(err).Msg(msg)
	return internalError(c, msg)
}
