package stripe

import (
	"encoding/json"
	"errors"
	"time"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
)

// SignatureHeader is the HTTP header carrying the webhook signature
const SignatureHeader = "Stripe-Signature"

// itemPeriods reads the per-item period end that newer API versions send
// in place of the subscription level field.
type itemPeriods struct {
	Items struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func signatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// ParseWebhook verifies the Stripe-Signature header against payload and
// decodes the events the service handles. Other event types are returned
// with no object attached.
func (c *Client) ParseWebhook(payload []byte, signatureHeader string) (*subscription.WebhookEvent, error) {
	if c.webhookSecret == "" {
		return nil, apperrors.InternalError("webhook secret is not configured", nil)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance: c.tolerance,
		// the handler reads only fields that are stable across API versions
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if signatureError(err) {
			return nil, apperrors.UnauthenticatedError("invalid webhook signature").WithField("reason", err.Error())
		}
		return nil, apperrors.ValidationError("malformed webhook payload")
	}
	out := &subscription.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case subscription.EventCheckoutCompleted:
		var s stripego.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, apperrors.ValidationError("malformed checkout session")
		}
		obj := &subscription.SessionObject{
			ClientReferenceID: s.ClientReferenceID,
			Metadata:          s.Metadata,
		}
		if s.Customer != nil {
			obj.CustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			obj.SubscriptionID = s.Subscription.ID
		}
		out.Session = obj
	case subscription.EventSubscriptionUpdated, subscription.EventSubscriptionDeleted:
		var s stripego.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, apperrors.ValidationError("malformed subscription")
		}
		obj := &subscription.SubscriptionObject{
			ID:       s.ID,
			Status:   string(s.Status),
			Metadata: s.Metadata,
		}
		if s.Customer != nil {
			obj.CustomerID = s.Customer.ID
		}
		if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
			obj.PriceID = s.Items.Data[0].Price.ID
		}
		periodEnd := s.CurrentPeriodEnd
		if periodEnd == 0 {
			var items itemPeriods
			if err := json.Unmarshal(ev.Data.Raw, &items); err == nil && len(items.Items.Data) > 0 {
				periodEnd = items.Items.Data[0].CurrentPeriodEnd
			}
		}
		if periodEnd > 0 {
			obj.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
		}
		out.Subscription = obj
	}
	return out, nil
}

// SignPayload builds a Stripe-Signature header for payload. Used by tests and
// local tooling that replays webhooks.
func SignPayload(secret string, payload []byte, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}
