package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/platform/logging"
)

const (
	correlationHeader = "X-Correlation-ID"
	principalKey      = "principal"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = logging.NewCorrelationID()
		}
		c.Response().Header().Set(correlationHeader, id)
		ctx := logging.WithCorrelationID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller on both the echo and request contexts.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		principal, err := s.verifier.Verify(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "missing bearer token"
			}
			return apperrors.UnauthenticatedError(msg)
		}

		ctx := auth.WithPrincipal(c.Request().Context(), principal)
		ctx = logging.WithUserID(ctx, principal.UserID.String())
		c.SetRequest(c.Request().WithContext(ctx))
		c.Set(principalKey, principal)
		return next(c)
	}
}

func principalFrom(c echo.Context) (*auth.Principal, error) {
	p, ok := c.Get(principalKey).(*auth.Principal)
	if !ok || p == nil {
		return nil, apperrors.UnauthenticatedError("missing bearer token")
	}
	return p, nil
}

func (s *Server) requestLogger(c echo.Context) *logrus.Entry {
	entry := logrus.NewEntry(s.log)
	if id, ok := logging.CorrelationID(c.Request().Context()); ok {
		entry = entry.WithField("correlation_id", id)
	}
	if p, ok := c.Get(principalKey).(*auth.Principal); ok && p != nil {
		entry = entry.WithField("user_id", p.UserID.String())
	}
	return entry
}

func (s *Server) errorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return s.writeError(c, wrapHTTPError(httpErr), httpErr.Code)
			}
			return s.handleError(c, err)
		}
	}
}

func (s *Server) handleError(c echo.Context, err error) error {
	structuredErr := apperrors.As(err)
	return s.writeError(c, structuredErr, structuredErr.HTTPStatus())
}

// writeError logs err and renders it with the given status.
func (s *Server) writeError(c echo.Context, err *apperrors.Error, status int) error {
	s.logError(c, err, status)

	if c.Response().Committed {
		return nil
	}
	if err := c.JSON(status, err.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func (s *Server) logError(c echo.Context, err *apperrors.Error, status int) {
	entry := s.requestLogger(c).WithFields(logrus.Fields{
		"error_type": err.Type,
		"path":       c.Request().URL.Path,
		"method":     c.Request().Method,
		"status":     status,
	})
	for k, v := range err.Context {
		entry = entry.WithField(k, v)
	}

	switch err.Type {
	case apperrors.TypeInternal, apperrors.TypeExternal:
		if err.Cause != nil {
			entry = entry.WithField("cause", err.Cause.Error())
		}
		entry.Error(err.Message)
	case apperrors.TypeConflict, apperrors.TypeForbidden, apperrors.TypeRateLimited:
		entry.Warn(err.Message)
	default:
		entry.Info(err.Message)
	}
}

func wrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var e *apperrors.Error
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		e = apperrors.ValidationError(message)
	case http.StatusUnauthorized:
		e = apperrors.UnauthenticatedError(message)
	case http.StatusForbidden:
		e = apperrors.ForbiddenError(message)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		e = apperrors.NotFoundError(message)
	case http.StatusTooManyRequests:
		e = apperrors.RateLimitedError(message)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		e = apperrors.ExternalError(message, httpErr.Internal)
	default:
		e = apperrors.InternalError(message, httpErr.Internal)
	}
	return e
}
