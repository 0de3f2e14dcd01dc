package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindgarden/internal/types"
)

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"created": 1700000000,
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventSubUpdated, event.Type)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.CreatedAt())
	assert.JSONEq(t, `{"id": "sub_1", "customer": "cus_1"}`, string(event.Data))
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{"id": "evt_1`},
		{name: "missing type", payload: `{"id": "evt_1", "created": 1700000000, "data": {"object": {}}}`},
		{name: "wrong shape", payload: `["evt_1"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.payload))
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeWebhookPayloadInvalid, appErr.Code)
		})
	}
}

func TestCheckoutSessionEvent_UserID(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_1",
			"subscription": "sub_1",
			"client_reference_id": "u_ref",
			"metadata": {"user_id": "u_meta"}
		}}
	}`))
	require.NoError(t, err)

	cs, err := event.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "u_meta", cs.UserID(), "metadata user_id should win")

	cs.Metadata.UserID = ""
	assert.Equal(t, "u_ref", cs.UserID(), "falls back to client_reference_id")

	cs.ClientReferenceID = ""
	assert.Empty(t, cs.UserID())
}

func TestSubscriptionEvent_FirstPriceID(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "customer.subscription.created",
		"created": 1700000000,
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"current_period_end": 1702592000,
			"items": {"data": [
				{"price": {"id": "price_a"}},
				{"price": {"id": "price_b"}}
			]}
		}}
	}`))
	require.NoError(t, err)

	sub, err := event.Subscription()
	require.NoError(t, err)
	assert.Equal(t, "price_a", sub.FirstPriceID())

	sub.Items.Data = nil
	assert.Empty(t, sub.FirstPriceID())
}

func TestEvent_Invoice(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "invoice.payment_failed",
		"created": 1700000000,
		"data": {"object": {"id": "in_1", "customer": "cus_1", "subscription": "sub_1"}}
	}`))
	require.NoError(t, err)

	inv, err := event.Invoice()
	require.NoError(t, err)
	assert.Equal(t, "in_1", inv.ID)
	assert.Equal(t, "cus_1", inv.Customer)
	assert.Equal(t, "sub_1", inv.Subscription)
}

func TestEvent_AccessorRejectsWrongShape(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"created": 1700000000,
		"data": {"object": "not-an-object"}
	}`))
	require.NoError(t, err)

	_, err = event.Subscription()
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeWebhookPayloadInvalid, appErr.Code)
}
