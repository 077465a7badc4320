package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// handleWebsocket upgrades an authenticated connection and hands it to the hub
// until the client disconnects. Browsers cannot set headers on websocket
// requests, so the token travels in the query string.
func (s *Server) handleWebsocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = c.Request().Header.Get(echo.HeaderAuthorization)
	}
	principal, err := s.verifier.Verify(token)
	if err != nil {
		return apperrors.UnauthenticatedError("invalid token")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.requestLogger(c).WithError(err).Debug("Websocket upgrade failed")
		return nil
	}

	log := s.requestLogger(c).WithField("user_id", principal.UserID.String())
	log.Debug("Websocket connected")
	if err := s.hub.Serve(principal.UserID, conn); err != nil {
		log.WithError(err).Warn("Websocket rejected")
		return nil
	}
	log.Debug("Websocket disconnected")
	return nil
}
