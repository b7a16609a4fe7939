// Package identity exposes the login and logout endpoints backed by the
// in-memory session store.
package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aria-health/aria/internal/platform/session"
)

type Handler struct {
	sessions session.Store
}

func NewHandler(sessions session.Store) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers the auth endpoints. These are the only
// unauthenticated JSON endpoints.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
	e.POST("/auth/logout", h.Logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	token, err := h.sessions.Login(req.Username, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	username, _ := h.sessions.Verify(token)
	return c.JSON(http.StatusOK, map[string]string{
		"token":    token,
		"username": username,
		"message":  "Welcome to ARIA",
	})
}

// Logout drops the session. Logging out an unknown token succeeds; the call
// is idempotent.
func (h *Handler) Logout(c echo.Context) error {
	h.sessions.Logout(c.QueryParam("token"))
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}
