package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/movie-ticket-reservation/internal/handler"
	"github.com/iliyamo/movie-ticket-reservation/internal/middleware"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

// RegisterRoutes registers the operational endpoints: /healthz for load
// balancers and /metrics for Prometheus.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the account endpoints.  Register, login, refresh
// and logout need no session; /me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)   // refresh_token in body, or bearer for all sessions

	e.GET("/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleUser))
}

// RegisterPublic registers the unauthenticated browse endpoints: the movie
// catalog, showtimes and seat maps.
func RegisterPublic(e *echo.Echo, m *handler.MovieHandler, s *handler.ShowtimeHandler) {
	e.GET("/movies", m.List)
	e.GET("/movies/:id", m.Get)
	e.GET("/movies/:id/showtimes", s.ListByMovie)
	e.GET("/showtimes/:id", s.Get)
	e.GET("/showtimes/:id/seats", s.Seats)
}

// RegisterAdmin registers catalog management and the per-showtime
// reservation view.  Every route requires the ADMIN role.
func RegisterAdmin(e *echo.Echo, m *handler.MovieHandler, s *handler.ShowtimeHandler, jwtSecret string) {
	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	}
	e.POST("/movies", m.Create, admin...)
	e.PUT("/movies/:id", m.Update, admin...)
	e.DELETE("/movies/:id", m.Delete, admin...)

	e.POST("/showtimes", s.Create, admin...)
	e.DELETE("/showtimes/:id", s.Delete, admin...)
	e.GET("/showtimes/:id/reservations", s.ListReservations, admin...)
}

// RegisterReservations registers the reservation endpoints.  Any
// authenticated user may reserve, list and cancel their own reservations.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, jwtSecret string) {
	g := e.Group("/reservations")
	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleUser),
	}
	g.POST("/reserve", r.Reserve, auth...)
	g.GET("", r.List, auth...)
	g.GET("/:id", r.Get, auth...)
	g.DELETE("/:id", r.Cancel, auth...)
}
