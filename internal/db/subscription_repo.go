package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"mindgarden/internal/types"
)

// SubscriptionRepo is the sole writer of the subscriptions table.
//
// Key invariants:
//   - One row per user, enforced by the user_id primary key and
//     upsert-by-user_id writes. Applying the same event twice produces the
//     same stored record.
//   - Every write carries a monotonicity guard on last_event_at: an event
//     strictly older than the stored one is silently dropped, so delayed or
//     reordered deliveries cannot overwrite fresher state.
//   - canceled is terminal for status-only updates. Only a full upsert (a
//     fresh subscription snapshot from the provider) can move a row out of
//     canceled.
//   - Rows are never deleted.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given
// connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// Upsert writes the full subscription record for sub.UserID in a single
// atomic statement. Concurrent deliveries for the same user are resolved by
// the statement itself; no explicit locking is needed. A conflicting row
// with a newer last_event_at wins and the stale write becomes a no-op.
func (r *SubscriptionRepo) Upsert(ctx context.Context, sub *types.Subscription) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (
		     user_id, stripe_customer_id, stripe_subscription_id,
		     status, plan, current_period_end, trial_end,
		     last_event_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     stripe_customer_id     = EXCLUDED.stripe_customer_id,
		     stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		     status                 = EXCLUDED.status,
		     plan                   = EXCLUDED.plan,
		     current_period_end     = EXCLUDED.current_period_end,
		     trial_end              = EXCLUDED.trial_end,
		     last_event_at          = EXCLUDED.last_event_at,
		     updated_at             = NOW()
		 WHERE subscriptions.last_event_at <= EXCLUDED.last_event_at`,
		sub.UserID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.Status,
		sub.Plan,
		sub.CurrentPeriodEnd,
		sub.TrialEnd,
		sub.LastEventAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "stale subscription event ignored",
			slog.String("user_id", sub.UserID),
			slog.Time("event_at", sub.LastEventAt),
		)
	}

	return nil
}

// SetStatus updates only the status field, leaving plan and period fields
// untouched (invoice events are authoritative for payment state, not for
// plan or period). The update is skipped when the row is canceled, when the
// event is stale, or when no row exists yet; all three are no-ops.
func (r *SubscriptionRepo) SetStatus(
	ctx context.Context,
	userID string,
	status types.SubscriptionStatus,
	eventAt time.Time,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $2,
		     last_event_at = $3,
		     updated_at = NOW()
		 WHERE user_id = $1
		   AND status <> 'canceled'
		   AND last_event_at <= $3`,
		userID,
		status,
		eventAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "status update skipped",
			slog.String("user_id", userID),
			slog.String("status", string(status)),
			slog.Time("event_at", eventAt),
		)
	}

	return nil
}

// Cancel marks the subscription canceled, keeping plan and period fields as
// a historical record. Re-cancelling an already-canceled row is a no-op by
// value, so the statement does not exclude canceled rows.
func (r *SubscriptionRepo) Cancel(ctx context.Context, userID string, eventAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'canceled',
		     last_event_at = $2,
		     updated_at = NOW()
		 WHERE user_id = $1
		   AND last_event_at <= $2`,
		userID,
		eventAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "cancellation skipped",
			slog.String("user_id", userID),
			slog.Time("event_at", eventAt),
		)
	}

	return nil
}

// GetByUserID returns the subscription row for the given user, or
// ErrCodeNotFoundSubscription when none exists.
func (r *SubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	var sub types.Subscription
	err := r.db.QueryRow(ctx,
		`SELECT user_id, stripe_customer_id, stripe_subscription_id,
		        status, plan, current_period_end, trial_end,
		        last_event_at, updated_at
		 FROM subscriptions
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&sub.UserID,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.Status,
		&sub.Plan,
		&sub.CurrentPeriodEnd,
		&sub.TrialEnd,
		&sub.LastEventAt,
		&sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("no subscription for user %s", userID),
			err,
		)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return &sub, nil
}
