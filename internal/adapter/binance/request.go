package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/platform/retry"
)

// Binance error code for an unknown trading pair
const codeInvalidSymbol = -1121

// APIError represents an error response from Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.IsRateLimited()
}

// IsRateLimited reports a 429, or a 418 once Binance has banned the IP.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusTeapot
}

// isUpstreamFailure separates outages from bad requests
func isUpstreamFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return !errors.Is(err, context.Canceled)
}

func classify(err error) retry.Action {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimited():
			return retry.After
		case apiErr.IsRetryable():
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	// network errors
	return retry.Retry
}

// doRequest performs a single GET and returns the body.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}

	return body, nil
}

// get performs a GET through the breaker with retries and decodes the JSON result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	policy := retry.Policy{
		MaxAttempts:      c.maxRetries + 1,
		InitialBackoff:   c.retryBackoff,
		RateLimitBackoff: 4 * c.retryBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt,
				"backoff": backoff,
			}).Debug("Retrying market data request")
		},
	}

	body, err := retry.Do(ctx, policy, classify, func() ([]byte, error) {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, path, query)
		})
		if err != nil {
			return nil, err
		}
		return res.([]byte), nil
	})
	c.record(err)
	if err != nil {
		return toAppError(err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return apperrors.ExternalError("unexpected market data response", fmt.Errorf("unmarshal response: %w", err))
	}
	return nil
}

func (c *Client) record(err error) {
	if c.recorder == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	default:
		result = "error"
	}
	c.recorder.ExternalRequest(serviceName, result)
}

func toAppError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeInvalidSymbol {
			return apperrors.ValidationError("unknown symbol").WithField("reason", apiErr.Message)
		}
		if apiErr.IsRateLimited() {
			return apperrors.RateLimitedError("market data rate limit reached, try again shortly")
		}
		return apperrors.ExternalError("market data request failed", err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.ExternalError("market data temporarily unavailable", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.ExternalError("market data request failed", err)
}
