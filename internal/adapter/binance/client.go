// Package binance is a client for the public Binance spot market-data API.
// It implements domain.MarketData.
package binance

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	serviceName    = "binance"
)

// Recorder counts outbound requests by result ("ok", "error", "rejected")
type Recorder interface {
	ExternalRequest(service, result string)
}

// Client provides access to the Binance public REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	recorder   Recorder

	maxRetries   int
	retryBackoff time.Duration
}

var _ domain.MarketData = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new market-data client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       logrus.StandardLogger(),
		limiter:      rate.NewLimiter(rate.Limit(10), 10),
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Client errors say nothing about the health of the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || !isUpstreamFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return c
}

// WithBaseURL overrides the API host, mostly for tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRecorder reports every request outcome to r.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}
