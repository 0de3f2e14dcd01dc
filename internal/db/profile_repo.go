package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"mindgarden/internal/types"
)

// UserProfileRepo resolves Stripe customer IDs to internal user IDs and
// records the customer link made on first checkout. The link is written once
// and read-only afterwards; at most one profile ever maps to a given
// customer ID (unique index on stripe_customer_id).
type UserProfileRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserProfileRepo creates a UserProfileRepo backed by the given
// connection (pool or transaction).
func NewUserProfileRepo(db DBTX, logger *slog.Logger) *UserProfileRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserProfileRepo{db: db, logger: logger}
}

// GetUserIDByCustomer returns the user linked to the given Stripe customer
// ID. A lookup miss is reported as ErrCodeNotFoundUser; callers in the
// webhook path treat that as a benign no-op, not a failure.
func (r *UserProfileRepo) GetUserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM user_profiles WHERE stripe_customer_id = $1`,
		customerID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("no user linked to customer %s", customerID),
			err,
		)
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to resolve customer", err)
	}
	return userID, nil
}

// LinkCustomer records the customer ID on the user's profile. The statement
// only matches when the profile is unlinked or already linked to the same
// customer, which makes repeat deliveries of the same checkout event no-ops.
// Linking a profile to a second, different customer is a conflict.
func (r *UserProfileRepo) LinkCustomer(ctx context.Context, userID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_profiles
		 SET stripe_customer_id = $2,
		     updated_at = NOW()
		 WHERE id = $1
		   AND (stripe_customer_id IS NULL OR stripe_customer_id = $2)`,
		userID,
		customerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to link customer", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the profile does not exist or it is linked to a different
		// customer. Distinguish for the caller.
		var existing *string
		err := r.db.QueryRow(ctx,
			`SELECT stripe_customer_id FROM user_profiles WHERE id = $1`,
			userID,
		).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(
				types.ErrCodeNotFoundUser,
				fmt.Sprintf("user %s does not exist", userID),
				err,
			)
		}
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to inspect customer link", err)
		}

		linked := ""
		if existing != nil {
			linked = *existing
		}
		r.logger.ErrorContext(ctx, "refusing to relink user to a different customer",
			slog.String("user_id", userID),
			slog.String("linked_customer_id", linked),
			slog.String("incoming_customer_id", customerID),
		)
		return types.NewAppError(
			types.ErrCodeConflictCustomerLink,
			fmt.Sprintf("user %s is already linked to another customer", userID),
			nil,
		)
	}

	return nil
}
