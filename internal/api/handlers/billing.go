package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mindgarden/internal/billing"
	"mindgarden/internal/core"
	"mindgarden/internal/external"
	"mindgarden/internal/types"
)

// SubscriptionReader is the read surface for subscription lookups.
// *db.SubscriptionRepo implements it.
type SubscriptionReader interface {
	GetByUserID(ctx context.Context, userID string) (*types.Subscription, error)
}

// CreateCheckoutSessionRequest is the body for POST /create-checkout-session.
//
// SuccessURL and CancelURL are intentionally not accepted from the client;
// they are built server-side from the configured app base URL to prevent
// open redirects.
type CreateCheckoutSessionRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Plan   string `json:"plan" validate:"required,oneof=monthly yearly"`
}

// CreatePortalSessionRequest is the body for POST /create-portal-session.
type CreatePortalSessionRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

// SessionURLResponse carries the hosted Stripe URL the client should
// redirect to.
type SessionURLResponse struct {
	URL string `json:"url"`
}

// BillingHandler handles synchronous billing actions initiated by the
// client app: starting a checkout, opening the billing portal, and
// reading the current subscription.
type BillingHandler struct {
	service    external.BillingService
	subs       SubscriptionReader
	catalog    *billing.PlanCatalog
	validator  *core.Validator
	appBaseURL string
	logger     *slog.Logger
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(
	service external.BillingService,
	subs SubscriptionReader,
	catalog *billing.PlanCatalog,
	validator *core.Validator,
	appBaseURL string,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		service:    service,
		subs:       subs,
		catalog:    catalog,
		validator:  validator,
		appBaseURL: appBaseURL,
		logger:     logger,
	}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/create-checkout-session", h.CreateCheckoutSession)
	r.Post("/create-portal-session", h.CreatePortalSession)
	r.Get("/subscriptions/{user_id}", h.GetSubscription)
}

// CreateCheckoutSession starts a Stripe Checkout flow for the requested
// plan and returns the hosted payment page URL.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan := types.PlanPremiumMonthly
	if req.Plan == "yearly" {
		plan = types.PlanPremiumYearly
	}
	priceID, ok := h.catalog.PriceFor(plan)
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"plan is not available",
			nil,
		))
		return
	}

	checkoutURL, err := h.service.CreateCheckoutSession(r.Context(), req.UserID, priceID, external.RedirectURLs{
		Success: h.appBaseURL + "/premium/success",
		Cancel:  h.appBaseURL + "/premium/cancel",
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout session",
			"user_id", req.UserID,
			"plan", plan,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, SessionURLResponse{URL: checkoutURL})
}

// CreatePortalSession opens the Stripe customer portal for self-serve
// billing management.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	var req CreatePortalSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	portalURL, err := h.service.CreatePortalSession(r.Context(), req.CustomerID, h.appBaseURL+"/account")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create portal session",
			"customer_id", req.CustomerID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, SessionURLResponse{URL: portalURL})
}

// GetSubscription returns the stored subscription for a user.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"user_id is required",
			nil,
		))
		return
	}

	sub, err := h.subs.GetByUserID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, sub)
}
