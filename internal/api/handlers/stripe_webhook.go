// Package handlers contains the HTTP handler implementations for the
// MindGarden billing API.
//
// The webhook handler is NOT behind auth middleware. It is called directly
// by Stripe; security comes from verifying the Stripe-Signature header
// against the raw request body.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mindgarden/internal/billing"
	"mindgarden/internal/core"
	"mindgarden/internal/external"
	"mindgarden/internal/types"
)

// maxWebhookBodySize caps the webhook payload at 64 KB. Stripe event
// payloads are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// webhookProcessTimeout bounds processing of a single delivery. Stripe
// treats slow responses as failed and redelivers, which is safe because
// every write is idempotent, but responding inside the window avoids
// pointless retries.
const webhookProcessTimeout = 5 * time.Second

// EventApplier applies a parsed event to subscription state.
// *billing.Reconciler implements it.
type EventApplier interface {
	Apply(ctx context.Context, event *billing.Event) error
}

// StripeWebhookHandler receives asynchronous events from Stripe, verifies
// them, and hands them to the reconciler.
//
// Response contract:
//   - 400 for a missing/invalid signature or an unparseable payload
//     (Stripe never retries these)
//   - 500 for transient failures (database, Stripe API) so Stripe
//     redelivers with backoff
//   - 200 for everything else, including events we choose to ignore
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	applier  EventApplier
	secret   types.SecretString
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	applier EventApplier,
	secret types.SecretString,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		applier:  applier,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from
// BillingHandler.RegisterRoutes because this route is public.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Handle)
}

// Handle processes one webhook delivery.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret.Unmask()); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event", "error", err)
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	ctx, cancel := context.WithTimeout(r.Context(), webhookProcessTimeout)
	defer cancel()

	if err := h.applier.Apply(ctx, event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		// A malformed data.object inside a verified envelope will never
		// parse differently on redelivery, so it gets a 400 like any other
		// malformed payload. Only retryable failures (database, Stripe API)
		// return 500, which makes Stripe redeliver; the idempotent upserts
		// make the redelivery safe.
		var appErr *types.AppError
		if errors.As(err, &appErr) && !appErr.Code.Retryable() {
			http.Error(w, "malformed event payload", http.StatusBadRequest)
			return
		}
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
