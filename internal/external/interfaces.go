package external

import (
	"context"

	"mindgarden/internal/types"
)

// RedirectURLs carries the success and cancel targets for a checkout
// session. Both are built server-side from the configured application base
// URL, never taken from the request.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// BillingService abstracts the synchronous Stripe API surface used by the
// checkout/portal handlers and the reconciler.
type BillingService interface {
	// CreateCheckoutSession generates a hosted checkout URL for the given
	// user and price. The user ID is attached as client_reference_id and
	// metadata for webhook correlation.
	CreateCheckoutSession(ctx context.Context, userID, priceID string, urls RedirectURLs) (checkoutURL string, err error)

	// CreatePortalSession generates a billing portal URL for an existing
	// customer.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (portalURL string, err error)

	// FetchSubscription retrieves the authoritative subscription snapshot
	// from the provider, used when a checkout completion event carries only
	// identifiers.
	FetchSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSnapshot, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking. Verification
// operates on the raw request bytes; parsing the body first would
// invalidate the signature.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}
