package middleware // reusable HTTP middleware for the Echo router

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/utils"
)

// Context keys set by JWTAuth.
const (
	UserIDKey = "user_id" // uint64
	RoleKey   = "role"    // string
)

// JWTAuth validates the Bearer access token and stores the user ID and role
// in the Echo context under UserIDKey and RoleKey.  Requests without a valid
// token are answered with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				logging.Ctx(c.Request().Context()).Debug().Err(err).Msg("access token rejected")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			// ParseAccessToken already checked the subject
			uid, _ := claims.UserID()
			c.Set(UserIDKey, uid)
			c.Set(RoleKey, claims.Role)
			return next(c)
		}
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
