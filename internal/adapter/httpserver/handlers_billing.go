package httpserver

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
)

const stripeSignatureHeader = "Stripe-Signature"

type checkoutRequest struct {
	Plan string `json:"plan"`
}

type subscriptionResponse struct {
	Plan             domain.Plan               `json:"plan"`
	EffectivePlan    domain.Plan               `json:"effective_plan"`
	Status           domain.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time                `json:"current_period_end,omitempty"`
	Limits           limitsResponse            `json:"limits"`
	Usage            usageResponse             `json:"usage"`
}

// Limits use -1 for unlimited.
type limitsResponse struct {
	TradesPerMonth            int  `json:"trades_per_month"`
	ScreenshotImportsPerMonth int  `json:"screenshot_imports_per_month"`
	CSVRowsPerImport          int  `json:"csv_rows_per_import"`
	AdvancedAnalytics         bool `json:"advanced_analytics"`
}

type usageResponse struct {
	TradesThisMonth            int `json:"trades_this_month"`
	ScreenshotImportsThisMonth int `json:"screenshot_imports_this_month"`
}

func toSubscriptionResponse(v *subscription.View) subscriptionResponse {
	out := subscriptionResponse{
		EffectivePlan: v.EffectivePlan,
		Limits: limitsResponse{
			TradesPerMonth:            v.Limits.TradesPerMonth,
			ScreenshotImportsPerMonth: v.Limits.ScreenshotImportsPerMonth,
			CSVRowsPerImport:          v.Limits.CSVRowsPerImport,
			AdvancedAnalytics:         v.Limits.AdvancedAnalytics,
		},
		Usage: usageResponse{
			TradesThisMonth:            v.Usage.TradesThisMonth,
			ScreenshotImportsThisMonth: v.Usage.ScreenshotImportsThisMonth,
		},
	}
	if v.Subscription != nil {
		out.Plan = v.Subscription.Plan
		out.Status = v.Subscription.Status
		out.CurrentPeriodEnd = v.Subscription.CurrentPeriodEnd
	}
	return out
}

func (s *Server) handleCheckout(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}

	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	plan := domain.Plan(strings.ToUpper(strings.TrimSpace(req.Plan)))

	url, err := s.billing.CreateCheckout(c.Request().Context(), principal.UserID, principal.Email, plan)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleSubscription(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}

	view, err := s.billing.Get(c.Request().Context(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSubscriptionResponse(view))
}

// handleStripeWebhook verifies and applies a billing event. The signature is
// computed over the raw body, so it must be read before any decoding.
func (s *Server) handleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.ValidationError("could not read request body")
	}

	if err := s.billing.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get(stripeSignatureHeader)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
