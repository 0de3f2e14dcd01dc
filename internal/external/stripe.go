package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"mindgarden/internal/types"
)

// stripeAPIBase is the default Stripe API base URL. Overridable in tests
// via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string // override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements BillingService by calling the Stripe REST API
// directly through BaseClient. Routing the calls through BaseClient keeps
// the resilience behavior (breaker, retries) uniform and makes httptest
// coverage straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient. The httpClient timeout bounds a
// single attempt; the retry budget on top is set by DefaultRetryPolicy.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	return NewStripeClientWithBase(
		NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), "MindGarden/1.0"),
		cfg,
	)
}

// NewStripeClientWithBase creates a StripeClient with a caller-provided
// BaseClient, used by tests to control retry timing.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreateCheckoutSession generates a hosted checkout URL in subscription
// mode. The user ID travels as client_reference_id and metadata so the
// resulting checkout.session.completed event can be correlated back.
func (s *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	userID, priceID string,
	urls RedirectURLs,
) (string, error) {
	params := url.Values{}
	params.Set("mode", "subscription")
	params.Set("client_reference_id", userID)
	params.Set("metadata[user_id]", userID)
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", s.wrapTransportError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode checkout session response",
			err,
		)
	}

	return session.URL, nil
}

// CreatePortalSession generates a billing portal URL for the customer.
func (s *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	resp, err := s.doPost(ctx, "/v1/billing_portal/sessions", params)
	if err != nil {
		return "", s.wrapTransportError("CreatePortalSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreatePortalSession")
	}

	var session stripePortalSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode portal session response",
			err,
		)
	}

	return session.URL, nil
}

// FetchSubscription retrieves the subscription by ID and reduces it to the
// snapshot the reconciler consumes.
func (s *StripeClient) FetchSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSnapshot, error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return nil, s.wrapTransportError("FetchSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "FetchSubscription")
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode subscription response",
			err,
		)
	}

	snapshot := &types.SubscriptionSnapshot{
		SubscriptionID:   sub.ID,
		CustomerID:       sub.Customer,
		Status:           sub.Status,
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if sub.TrialEnd > 0 {
		trialEnd := time.Unix(sub.TrialEnd, 0).UTC()
		snapshot.TrialEnd = &trialEnd
	}
	if len(sub.Items.Data) > 0 {
		snapshot.PriceID = sub.Items.Data[0].Price.ID
	}

	return snapshot, nil
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// handleErrorResponse reads a Stripe error body and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with unreadable body", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	if stripeErr.Error.Code == "card_declined" || stripeErr.Error.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Error.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.Error.DeclineCode,
				"stripe_code":  stripeErr.Error.Code,
			},
		)
	}

	if resp.StatusCode == http.StatusNotFound {
		return types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Error.Message),
			nil,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
		nil,
	)
}

// wrapTransportError passes through AppErrors from BaseClient and wraps
// anything else.
func (s *StripeClient) wrapTransportError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe response types
// ---------------------------------------------------------------------------

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID               string                  `json:"id"`
	Customer         string                  `json:"customer"`
	Status           string                  `json:"status"`
	CurrentPeriodEnd int64                   `json:"current_period_end"`
	TrialEnd         int64                   `json:"trial_end"`
	Items            stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID string `json:"id"`
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's payload
// validation, which checks the HMAC-SHA256 signature and the timestamp
// tolerance against replay.
type StripeVerifier struct{}

// Verify validates the raw payload against the Stripe-Signature header.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// Compile-time assertions.
var (
	_ BillingService  = (*StripeClient)(nil)
	_ WebhookVerifier = (*StripeVerifier)(nil)
)
