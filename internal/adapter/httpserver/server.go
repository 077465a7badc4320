// Package httpserver serves the HTTP side of the journal: file imports and
// exports, billing, the Stripe webhook, realtime websockets, health and metrics.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/simaogato/tradejournal-backend/internal/adapter/metrics"
	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/platform/config"
	"github.com/simaogato/tradejournal-backend/internal/usecase/importer"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
)

type importService interface {
	ImportCSV(ctx context.Context, userID uuid.UUID, exchange string, format importer.Format, r io.Reader) (*importer.ImportResult, error)
	ImportScreenshot(ctx context.Context, userID uuid.UUID, exchange string, rows []importer.ScreenshotRow) (*importer.ImportResult, error)
	ExportCSV(ctx context.Context, userID uuid.UUID, w io.Writer, filter importer.ExportFilter) (int, error)
}

type billingService interface {
	Get(ctx context.Context, userID uuid.UUID) (*subscription.View, error)
	CreateCheckout(ctx context.Context, userID uuid.UUID, email string, plan domain.Plan) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type realtimeHub interface {
	Serve(userID uuid.UUID, conn *websocket.Conn) error
}

// Deps are the services the HTTP routes call into.
type Deps struct {
	Imports      importService
	Billing      billingService
	Hub          realtimeHub
	Metrics      *metrics.Metrics
	HealthChecks []HealthCheck
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	log      *logrus.Logger
	verifier *auth.Verifier

	imports importService
	billing billingService
	hub     realtimeHub
	metrics *metrics.Metrics

	upgrader     websocket.Upgrader
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, log *logrus.Logger, verifier *auth.Verifier, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		log:      log,
		verifier: verifier,
		imports:  deps.Imports,
		billing:  deps.Billing,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the web app's origin; the token is the credential.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		healthChecks: deps.HealthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.log.WithField("addr", s.config.HTTPAddr).Info("Starting HTTP server")
	if err := s.echo.Start(s.config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
