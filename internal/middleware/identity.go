package middleware

// identity.go holds helpers shared by the middleware that need to know who
// is calling.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-ticket-reservation/internal/utils"
)

// userID returns the caller's user ID as a string, or "anon".  It prefers
// the ID stored by JWTAuth; middleware that runs before JWTAuth (the rate
// limiter is mounted globally) reads the bearer token itself.  A missing or
// invalid token counts as anonymous.
func userID(c echo.Context, secret string) string {
	if id, ok := c.Get(UserIDKey).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	if secret == "" {
		return "anon"
	}
	raw, ok := bearerToken(c.Request())
	if !ok {
		return "anon"
	}
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return "anon"
	}
	id, err := claims.UserID()
	if err != nil || id == 0 {
		return "anon"
	}
	return strconv.FormatUint(id, 10)
}
