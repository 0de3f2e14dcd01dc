package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mindgarden/internal/types"
)

// SubscriptionStore is the subscription persistence surface the
// reconciler needs. *db.SubscriptionRepo implements it.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *types.Subscription) error
	SetStatus(ctx context.Context, userID string, status types.SubscriptionStatus, eventAt time.Time) error
	Cancel(ctx context.Context, userID string, eventAt time.Time) error
}

// CustomerLinker resolves and records the Stripe customer to user
// mapping. *db.UserProfileRepo implements it.
type CustomerLinker interface {
	GetUserIDByCustomer(ctx context.Context, customerID string) (string, error)
	LinkCustomer(ctx context.Context, userID, customerID string) error
}

// SubscriptionFetcher retrieves the authoritative subscription snapshot
// from Stripe. *external.StripeClient implements it.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSnapshot, error)
}

// Reconciler applies verified Stripe events to subscription state. Every
// write is a single-statement upsert or guarded update, so concurrent or
// duplicate deliveries for the same user converge without locking.
type Reconciler struct {
	subs     SubscriptionStore
	profiles CustomerLinker
	fetcher  SubscriptionFetcher
	catalog  *PlanCatalog
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	subs SubscriptionStore,
	profiles CustomerLinker,
	fetcher SubscriptionFetcher,
	catalog *PlanCatalog,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		subs:     subs,
		profiles: profiles,
		fetcher:  fetcher,
		catalog:  catalog,
		logger:   logger,
	}
}

// Apply routes an event to its handler. A nil return means the delivery
// should be acknowledged; unrecognized event types and unresolvable
// events (unknown customer, unknown price) are acknowledged so Stripe
// does not retry them forever. Returned errors are transient failures
// the caller should surface as a retryable response.
func (r *Reconciler) Apply(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return r.applyCheckoutCompleted(ctx, event)
	case EventSubCreated, EventSubUpdated:
		return r.applySubscriptionUpdate(ctx, event)
	case EventSubDeleted:
		return r.applySubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		return r.applyInvoiceOutcome(ctx, event, types.SubStatusActive)
	case EventInvoiceFailed:
		return r.applyInvoiceOutcome(ctx, event, types.SubStatusPastDue)
	default:
		r.logger.Debug("ignoring unrecognized event type",
			"event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, event *Event) error {
	cs, err := event.CheckoutSession()
	if err != nil {
		return err
	}
	if cs.Customer == "" || cs.Subscription == "" {
		r.logger.Warn("checkout session missing customer or subscription id, skipping",
			"event_id", event.ID, "session_id", cs.ID)
		return nil
	}

	userID := cs.UserID()
	if userID != "" {
		if err := r.profiles.LinkCustomer(ctx, userID, cs.Customer); err != nil {
			if isUnresolvable(err) {
				r.logger.Error("cannot link stripe customer, skipping event",
					"event_id", event.ID, "user_id", userID,
					"customer_id", cs.Customer, "error", err)
				return nil
			}
			return err
		}
	} else {
		userID, err = r.profiles.GetUserIDByCustomer(ctx, cs.Customer)
		if err != nil {
			if isUnresolvable(err) {
				r.logger.Warn("checkout session customer not linked to any user, skipping",
					"event_id", event.ID, "customer_id", cs.Customer)
				return nil
			}
			return err
		}
	}

	snap, err := r.fetcher.FetchSubscription(ctx, cs.Subscription)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSubscription {
			r.logger.Error("checkout session references unknown subscription, skipping",
				"event_id", event.ID, "subscription_id", cs.Subscription)
			return nil
		}
		return err
	}

	plan, ok := r.catalog.ClassifyPrice(snap.PriceID)
	if !ok {
		r.logger.Error("subscription price not in catalog, skipping event",
			"event_id", event.ID, "price_id", snap.PriceID)
		return nil
	}
	status, ok := mapStripeStatus(snap.Status)
	if !ok {
		r.logger.Warn("unrecognized subscription status, skipping event",
			"event_id", event.ID, "stripe_status", snap.Status)
		return nil
	}

	return r.subs.Upsert(ctx, &types.Subscription{
		UserID:               userID,
		StripeCustomerID:     snap.CustomerID,
		StripeSubscriptionID: snap.SubscriptionID,
		Status:               status,
		Plan:                 plan,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		TrialEnd:             snap.TrialEnd,
		LastEventAt:          event.CreatedAt(),
	})
}

func (r *Reconciler) applySubscriptionUpdate(ctx context.Context, event *Event) error {
	sub, err := event.Subscription()
	if err != nil {
		return err
	}

	userID, resolved, err := r.resolveCustomer(ctx, event, sub.Customer)
	if err != nil || !resolved {
		return err
	}

	plan, ok := r.catalog.ClassifyPrice(sub.FirstPriceID())
	if !ok {
		r.logger.Error("subscription price not in catalog, skipping event",
			"event_id", event.ID, "price_id", sub.FirstPriceID())
		return nil
	}
	status, ok := mapStripeStatus(sub.Status)
	if !ok {
		r.logger.Warn("unrecognized subscription status, skipping event",
			"event_id", event.ID, "stripe_status", sub.Status)
		return nil
	}

	var trialEnd *time.Time
	if sub.TrialEnd != nil {
		te := time.Unix(*sub.TrialEnd, 0).UTC()
		trialEnd = &te
	}

	return r.subs.Upsert(ctx, &types.Subscription{
		UserID:               userID,
		StripeCustomerID:     sub.Customer,
		StripeSubscriptionID: sub.ID,
		Status:               status,
		Plan:                 plan,
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		TrialEnd:             trialEnd,
		LastEventAt:          event.CreatedAt(),
	})
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, event *Event) error {
	sub, err := event.Subscription()
	if err != nil {
		return err
	}

	userID, resolved, err := r.resolveCustomer(ctx, event, sub.Customer)
	if err != nil || !resolved {
		return err
	}

	return r.subs.Cancel(ctx, userID, event.CreatedAt())
}

func (r *Reconciler) applyInvoiceOutcome(
	ctx context.Context,
	event *Event,
	status types.SubscriptionStatus,
) error {
	inv, err := event.Invoice()
	if err != nil {
		return err
	}
	if inv.Subscription == "" {
		r.logger.Debug("invoice without subscription id, skipping",
			"event_id", event.ID, "invoice_id", inv.ID)
		return nil
	}

	userID, resolved, err := r.resolveCustomer(ctx, event, inv.Customer)
	if err != nil || !resolved {
		return err
	}

	return r.subs.SetStatus(ctx, userID, status, event.CreatedAt())
}

// resolveCustomer maps a Stripe customer id to a user id. A miss is not
// an error: it is logged and the event is dropped, since retrying a
// delivery for an unlinked customer would never succeed.
func (r *Reconciler) resolveCustomer(
	ctx context.Context,
	event *Event,
	customerID string,
) (string, bool, error) {
	if customerID == "" {
		r.logger.Warn("event missing customer id, skipping",
			"event_id", event.ID, "event_type", event.Type)
		return "", false, nil
	}

	userID, err := r.profiles.GetUserIDByCustomer(ctx, customerID)
	if err != nil {
		if isUnresolvable(err) {
			r.logger.Warn("stripe customer not linked to any user, skipping event",
				"event_id", event.ID, "event_type", event.Type,
				"customer_id", customerID)
			return "", false, nil
		}
		return "", false, err
	}
	return userID, true, nil
}

// isUnresolvable reports whether an error will never clear up on retry,
// so the event should be acknowledged rather than redelivered.
func isUnresolvable(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrCodeNotFoundUser, types.ErrCodeConflictCustomerLink:
		return true
	}
	return false
}

// mapStripeStatus folds Stripe's subscription statuses onto the four
// stored values. Stripe's incomplete states map to the nearest stored
// equivalent; anything unrecognized is reported false so the caller can
// skip the event instead of persisting an out-of-enum value.
func mapStripeStatus(s string) (types.SubscriptionStatus, bool) {
	switch s {
	case "trialing":
		return types.SubStatusTrialing, true
	case "active":
		return types.SubStatusActive, true
	case "past_due", "unpaid", "incomplete":
		return types.SubStatusPastDue, true
	case "canceled", "incomplete_expired":
		return types.SubStatusCanceled, true
	default:
		return "", false
	}
}
