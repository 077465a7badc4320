package httpserver

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.metrics != nil {
		s.echo.Use(s.metrics.Middleware())
	}
	s.echo.Use(s.errorHandlingMiddleware())
	s.echo.Use(middleware.BodyLimit(fmt.Sprintf("%dB", s.config.MaxUploadBytes)))

	limiter := newRateLimiter(s.config.HTTPRatePerSec, s.config.HTTPRateBurst)

	s.registerHealthRoutes()

	api := s.echo.Group("/api/v1", limiter, s.requireAuth)
	api.POST("/imports/csv", s.handleImportCSV)
	api.POST("/imports/screenshot", s.handleImportScreenshot)
	api.GET("/trades/export.csv", s.handleExportCSV)
	api.POST("/billing/checkout", s.handleCheckout)
	api.GET("/billing/subscription", s.handleSubscription)

	s.echo.POST("/webhooks/stripe", s.handleStripeWebhook, limiter)
	s.echo.GET("/ws", s.handleWebsocket, limiter)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/healthz", "/readyz", "/metrics":
				return true
			}
			return false
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.requestLogger(c).WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("Request")
			return nil
		},
	})
}
