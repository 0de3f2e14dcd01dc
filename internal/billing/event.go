package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"mindgarden/internal/types"
)

// Stripe event types the reconciler acts on. Everything else is
// acknowledged without state change.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubCreated        = "customer.subscription.created"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
	EventInvoicePaid       = "invoice.payment_succeeded"
	EventInvoiceFailed     = "invoice.payment_failed"
)

// Event is a verified Stripe event with its payload left opaque. Only the
// per-type accessors interpret Data, so new event types flow through the
// dispatcher untouched.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"-"`
}

// CreatedAt returns the event creation time in UTC.
func (e *Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a signature-verified webhook payload. It validates
// only the envelope; the inner object is decoded lazily by the accessors.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeWebhookPayloadInvalid, "malformed event payload", err)
	}
	if env.Type == "" {
		return nil, types.NewAppError(types.ErrCodeWebhookPayloadInvalid, "event payload missing type", nil)
	}

	return &Event{
		ID:      env.ID,
		Type:    env.Type,
		Created: env.Created,
		Data:    env.Data.Object,
	}, nil
}

// CheckoutSessionEvent is the slice of a checkout.session.completed
// resource the reconciler needs.
type CheckoutSessionEvent struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
	Metadata          struct {
		UserID string `json:"user_id"`
	} `json:"metadata"`
}

// UserID returns the user id the checkout session was created for,
// preferring metadata over client_reference_id. Empty when the session
// carried neither.
func (c *CheckoutSessionEvent) UserID() string {
	if c.Metadata.UserID != "" {
		return c.Metadata.UserID
	}
	return c.ClientReferenceID
}

// SubscriptionEvent is the slice of a customer.subscription.* resource
// the reconciler needs.
type SubscriptionEvent struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	TrialEnd         *int64 `json:"trial_end"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// FirstPriceID returns the price id of the first line item, or "" when
// the subscription carries no items.
func (s *SubscriptionEvent) FirstPriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// InvoiceEvent is the slice of an invoice.payment_* resource the
// reconciler needs.
type InvoiceEvent struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// CheckoutSession decodes the payload of a checkout.session.completed event.
func (e *Event) CheckoutSession() (*CheckoutSessionEvent, error) {
	var cs CheckoutSessionEvent
	if err := json.Unmarshal(e.Data, &cs); err != nil {
		return nil, types.NewAppError(types.ErrCodeWebhookPayloadInvalid,
			fmt.Sprintf("malformed checkout session in event %s", e.ID), err)
	}
	return &cs, nil
}

// Subscription decodes the payload of a customer.subscription.* event.
func (e *Event) Subscription() (*SubscriptionEvent, error) {
	var sub SubscriptionEvent
	if err := json.Unmarshal(e.Data, &sub); err != nil {
		return nil, types.NewAppError(types.ErrCodeWebhookPayloadInvalid,
			fmt.Sprintf("malformed subscription in event %s", e.ID), err)
	}
	return &sub, nil
}

// Invoice decodes the payload of an invoice.payment_* event.
func (e *Event) Invoice() (*InvoiceEvent, error) {
	var inv InvoiceEvent
	if err := json.Unmarshal(e.Data, &inv); err != nil {
		return nil, types.NewAppError(types.ErrCodeWebhookPayloadInvalid,
			fmt.Sprintf("malformed invoice in event %s", e.ID), err)
	}
	return &inv, nil
}
