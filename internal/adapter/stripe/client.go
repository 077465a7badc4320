// Package stripe talks to Stripe Checkout and verifies Stripe webhooks.
// It implements subscription.Billing on top of stripe-go.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/platform/retry"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
)

const (
	DefaultBaseURL = stripego.APIURL
	serviceName    = "stripe"

	// DefaultTolerance is how old a webhook signature timestamp may be
	DefaultTolerance = 5 * time.Minute
)

// Recorder counts outbound requests by result
type Recorder interface {
	ExternalRequest(service, result string)
}

// Client creates checkout sessions and parses webhooks.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	tolerance     time.Duration
	httpClient    *http.Client
	logger        *logrus.Logger
	recorder      Recorder
	policy        retry.Policy
	sessions      *session.Client
}

var _ subscription.Billing = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a Stripe client for the given API key and webhook signing secret.
func NewClient(secretKey, webhookSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		tolerance:     DefaultTolerance,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		logger:        logrus.StandardLogger(),
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 2 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	// retries belong to c.policy so every attempt reuses one idempotency key
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(c.baseURL),
		HTTPClient:        c.httpClient,
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     c.logger,
	})
	c.sessions = &session.Client{B: backend, Key: secretKey}
	return c
}

// WithBaseURL overrides the API host, mostly for tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTolerance sets the maximum webhook signature age.
func WithTolerance(d time.Duration) ClientOption {
	return func(c *Client) { c.tolerance = d }
}

// WithRetries sets the retry configuration for API calls.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.policy.MaxAttempts = max + 1
		c.policy.InitialBackoff = backoff
		c.policy.RateLimitBackoff = 4 * backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRecorder reports every request outcome to r.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.recorder = r }
}

func classify(err error) retry.Action {
	var apiErr *stripego.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return retry.After
		case apiErr.HTTPStatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}

func checkoutParams(ctx context.Context, req subscription.CheckoutRequest) *stripego.CheckoutSessionParams {
	userID := req.UserID.String()
	params := &stripego.CheckoutSessionParams{
		Mode: stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			Price:    stripego.String(req.PriceID),
			Quantity: stripego.Int64(1),
		}},
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(userID),
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": userID,
				"plan":    string(req.Plan),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripego.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("plan", string(req.Plan))
	return params
}

// CreateCheckoutSession creates a hosted subscription checkout and returns its URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, req subscription.CheckoutRequest) (string, error) {
	params := checkoutParams(ctx, req)
	// One key for every attempt so Stripe never creates two sessions.
	params.SetIdempotencyKey(uuid.NewString())

	policy := c.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff,
		}).Warn("Retrying Stripe checkout request")
	}

	s, err := retry.Do(ctx, policy, classify, func() (*stripego.CheckoutSession, error) {
		return c.sessions.New(params)
	})
	c.record(err)
	if err != nil {
		return "", apperrors.ExternalError("failed to create checkout session", err)
	}
	if s.URL == "" {
		return "", apperrors.ExternalError("checkout session has no URL", nil).WithField("session_id", s.ID)
	}
	return s.URL, nil
}

func (c *Client) record(err error) {
	if c.recorder == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.recorder.ExternalRequest(serviceName, result)
}
