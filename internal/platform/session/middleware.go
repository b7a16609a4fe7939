package session

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UsernameKey is the echo context key under which RequireToken stores the
// authenticated username.
const UsernameKey = "session_username"

// RequireToken rejects requests whose token query parameter is absent or not
// bound to an active session.
func RequireToken(store Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.QueryParam("token")
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			username, ok := store.Verify(token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(UsernameKey, username)
			return next(c)
		}
	}
}

// Username reads the authenticated username set by RequireToken.
func Username(c echo.Context) string {
	username, _ := c.Get(UsernameKey).(string)
	return username
}
