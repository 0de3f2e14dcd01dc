// Package types holds the shared domain model for the MindGarden billing
// sync service: plan tiers, subscription state, the error taxonomy, and
// request-scoped context helpers.
package types

import "time"

// PlanTier is the internal classification of a premium subscription.
// It is always derived from a Stripe price ID through the plan catalog,
// never taken from provider payloads directly.
type PlanTier string

const (
	PlanPremiumMonthly PlanTier = "premium_monthly"
	PlanPremiumYearly  PlanTier = "premium_yearly"
)

// SubscriptionStatus is the local subscription lifecycle state. These four
// values are the only ones ever persisted; Stripe statuses outside this set
// are mapped before any write.
type SubscriptionStatus string

const (
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// IsEntitled reports whether the status grants access to premium features.
func (s SubscriptionStatus) IsEntitled() bool {
	return s == SubStatusTrialing || s == SubStatusActive
}

// UserProfile is the slice of the profile record this service reads and
// writes. StripeCustomerID is set once, on the first successful checkout,
// and treated as read-only afterwards.
type UserProfile struct {
	ID               string    `json:"id"`
	StripeCustomerID *string   `json:"stripe_customer_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Subscription is the locally persisted billing state for a single user.
// There is at most one row per user; cancellation is a status transition,
// never a delete.
type Subscription struct {
	UserID               string             `json:"user_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	Status               SubscriptionStatus `json:"status"`
	Plan                 PlanTier           `json:"plan"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	// LastEventAt is the Stripe created timestamp of the last event applied
	// to this row. Events strictly older than it are dropped.
	LastEventAt time.Time `json:"last_event_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubscriptionSnapshot is the provider-side view of a subscription as
// fetched from the Stripe API, reduced to the fields the reconciler needs.
type SubscriptionSnapshot struct {
	SubscriptionID   string
	CustomerID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd time.Time
	TrialEnd         *time.Time
}
