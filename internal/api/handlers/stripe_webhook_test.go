package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"mindgarden/internal/billing"
	"mindgarden/internal/external"
	"mindgarden/internal/types"
)

type mockVerifier struct {
	err error
}

func (m *mockVerifier) Verify(payload []byte, header, secret string) error {
	return m.err
}

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) Apply(ctx context.Context, event *billing.Event) error {
	return m.Called(ctx, event).Error(0)
}

const webhookTestSecret = "whsec_test_secret"

func newWebhookServer(verifier external.WebhookVerifier, applier EventApplier) *httptest.Server {
	h := NewStripeWebhookHandler(verifier, applier, types.SecretString(webhookTestSecret),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return httptest.NewServer(r)
}

func postWebhook(t *testing.T, serverURL string, payload []byte, sigHeader string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, serverURL+"/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func validEventPayload() []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "invoice.payment_succeeded",
		"created": 1700000000,
		"data": {"object": {"id": "in_1", "customer": "cus_1", "subscription": "sub_1"}}
	}`)
}

func TestWebhook_MissingSignature(t *testing.T) {
	applier := &mockApplier{}
	ts := newWebhookServer(&mockVerifier{}, applier)
	defer ts.Close()

	resp := postWebhook(t, ts.URL, validEventPayload(), "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestWebhook_TamperedBodyRejected(t *testing.T) {
	// Real verifier: sign one payload, deliver another.
	applier := &mockApplier{}
	ts := newWebhookServer(&external.StripeVerifier{}, applier)
	defer ts.Close()

	signed := stripe.GenerateTestSignedPayload(&stripe.UnsignedPayload{
		Payload: validEventPayload(),
		Secret:  webhookTestSecret,
	})
	tampered := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.deleted",
		"created": 1700000000,
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`)

	resp := postWebhook(t, ts.URL, tampered, signed.Header)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestWebhook_ValidSignatureAccepted(t *testing.T) {
	applier := &mockApplier{}
	applier.On("Apply", mock.Anything, mock.MatchedBy(func(e *billing.Event) bool {
		return e.ID == "evt_1" && e.Type == billing.EventInvoicePaid
	})).Return(nil)

	ts := newWebhookServer(&external.StripeVerifier{}, applier)
	defer ts.Close()

	payload := validEventPayload()
	signed := stripe.GenerateTestSignedPayload(&stripe.UnsignedPayload{
		Payload: payload,
		Secret:  webhookTestSecret,
	})

	resp := postWebhook(t, ts.URL, payload, signed.Header)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"received": true}`, string(body))
	applier.AssertExpectations(t)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	applier := &mockApplier{}
	ts := newWebhookServer(&mockVerifier{}, applier)
	defer ts.Close()

	resp := postWebhook(t, ts.URL, []byte(`{"id": "evt_1"`), "t=1,v1=abc")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	applier.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

// subscriptionApplier decodes the subscription object like the reconciler
// does, surfacing accessor failures to the handler.
type subscriptionApplier struct{}

func (subscriptionApplier) Apply(ctx context.Context, event *billing.Event) error {
	_, err := event.Subscription()
	return err
}

func TestWebhook_MalformedObjectReturns400(t *testing.T) {
	// The envelope parses, the signature verifies, but data.object has the
	// wrong shape. Redelivery would never decode it differently, so the
	// handler must answer 400, not 500.
	ts := newWebhookServer(&external.StripeVerifier{}, subscriptionApplier{})
	defer ts.Close()

	payload := []byte(`{
		"id": "evt_bad",
		"type": "customer.subscription.updated",
		"created": 1700000000,
		"data": {"object": ["not", "an", "object"]}
	}`)
	signed := stripe.GenerateTestSignedPayload(&stripe.UnsignedPayload{
		Payload: payload,
		Secret:  webhookTestSecret,
	})

	resp := postWebhook(t, ts.URL, payload, signed.Header)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_TransientFailureReturns500(t *testing.T) {
	applier := &mockApplier{}
	applier.On("Apply", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeInternalDB, "connection lost", nil))

	ts := newWebhookServer(&mockVerifier{}, applier)
	defer ts.Close()

	resp := postWebhook(t, ts.URL, validEventPayload(), "t=1,v1=abc")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	applier.AssertExpectations(t)
}

func TestWebhook_AbsorbedOutcomeReturns200(t *testing.T) {
	// The reconciler reports resolution misses and unknown event types as
	// nil; the handler acknowledges them.
	applier := &mockApplier{}
	applier.On("Apply", mock.Anything, mock.Anything).Return(nil)

	ts := newWebhookServer(&mockVerifier{}, applier)
	defer ts.Close()

	payload := []byte(`{
		"id": "evt_2",
		"type": "some.future.event",
		"created": 1700000000,
		"data": {"object": {}}
	}`)
	resp := postWebhook(t, ts.URL, payload, "t=1,v1=abc")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
