// Package metrics exposes the service's Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/logging"
)

const namespace = "tradejournal"

// Metrics holds every collector of the service on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	TradesLogged     *prometheus.CounterVec
	Imports          *prometheus.CounterVec
	XPAwardedTotal   *prometheus.CounterVec
	ExternalRequests *prometheus.CounterVec
	SideEffectErrors *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TradesLogged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_logged_total",
				Help:      "Trades stored, by source",
			},
			[]string{"source"},
		),

		Imports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Finished imports by kind and result",
			},
			[]string{"kind", "result"},
		),

		XPAwardedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "xp_awarded_total",
				Help:      "XP awarded, by reason",
			},
			[]string{"reason"},
		),

		ExternalRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_requests_total",
				Help:      "Outbound requests to third-party APIs by service and result",
			},
			[]string{"service", "result"},
		),

		SideEffectErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "side_effect_failures_total",
				Help:      "Failed follow-up work (events, XP, goal checks) by operation",
			},
			[]string{"op"},
		),

		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TradeLogged implements trade.Observer.
func (m *Metrics) TradeLogged(source domain.TradeSource) {
	m.TradesLogged.WithLabelValues(strings.ToLower(string(source))).Inc()
}

// ImportCompleted implements importer.Observer. Imported rows also count as
// logged trades under the import's source.
func (m *Metrics) ImportCompleted(kind domain.ImportKind, imported, duplicates, failed int) {
	result := "ok"
	switch {
	case imported == 0 && failed > 0:
		result = "failed"
	case failed > 0:
		result = "partial"
	case imported == 0 && duplicates > 0:
		result = "duplicate"
	}
	m.Imports.WithLabelValues(strings.ToLower(string(kind)), result).Inc()
	if imported > 0 {
		m.TradesLogged.WithLabelValues(strings.ToLower(string(kind))).Add(float64(imported))
	}
}

// XPAwarded implements progress.Observer.
func (m *Metrics) XPAwarded(reason domain.XPReason, amount int) {
	m.XPAwardedTotal.WithLabelValues(string(reason)).Add(float64(amount))
}

// ExternalRequest implements the recorder of the binance and stripe clients.
func (m *Metrics) ExternalRequest(service, result string) {
	m.ExternalRequests.WithLabelValues(service, result).Inc()
}

// SideEffectFailed implements domain.FailureReporter.
func (m *Metrics) SideEffectFailed(ctx context.Context, op string, err error) {
	m.SideEffectErrors.WithLabelValues(op).Inc()
	logging.FromContext(ctx).WithError(err).WithField("op", op).Warn("Side effect failed")
}

// Middleware records request latency labelled by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < 400 {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
