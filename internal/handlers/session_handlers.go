package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fortunet/internal/services"
)

// SessionHandler exposes live router session state. The router is the
// source of truth here; nothing on these paths is cached or persisted.
type SessionHandler struct {
	router *services.MikroTikService
}

func NewSessionHandler(router *services.MikroTikService) *SessionHandler {
	return &SessionHandler{router: router}
}

// CurrentSession returns the live hotspot session of the calling
// client, matched by source IP. Captive-portal pages poll this.
func (h *SessionHandler) CurrentSession(c echo.Context) error {
	session, err := h.router.SessionByAddress(c.Request().Context(), c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// ActiveUsers lists all live hotspot sessions.
func (h *SessionHandler) ActiveUsers(c echo.Context) error {
	sessions, err := h.router.ActiveSessions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessions)
}

// HotspotUsers lists the router-resident hotspot accounts with their
// provisioned limits.
func (h *SessionHandler) HotspotUsers(c echo.Context) error {
	users, err := h.router.HotspotUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// DisconnectUser kicks an active session off the hotspot.
func (h *SessionHandler) DisconnectUser(c echo.Context) error {
	sessionID := c.Param("id")
	if err := h.router.DisconnectSession(c.Request().Context(), sessionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "User disconnected successfully"})
}

// BlockUser puts a session's address on the firewall block list and
// disconnects it.
func (h *SessionHandler) BlockUser(c echo.Context) error {
	sessionID := c.Param("id")

	sessions, err := h.router.ActiveSessions(c.Request().Context())
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if session.ID != sessionID {
			continue
		}
		if err := h.router.BlockAddress(c.Request().Context(), session.Address, "Blocked user: "+session.Username); err != nil {
			return err
		}
		if err := h.router.DisconnectSession(c.Request().Context(), sessionID); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "User blocked successfully"})
	}

	return echo.NewHTTPError(http.StatusNotFound, "session not found")
}
