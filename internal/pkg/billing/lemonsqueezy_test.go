package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supuni9622/ModelSnap/app/models"
)

func TestParseLemonSqueezyEventOrderCreated(t *testing.T) {
	payload := []byte(`{
		"meta": {"event_name": "order_created", "custom_data": {"user_id": "12"}},
		"data": {"id": "1182718", "attributes": {
			"customer_id": 9955,
			"user_email": "buyer@example.com",
			"total": 2900,
			"first_order_item": {"variant_id": 44001}
		}}
	}`)

	ev, err := ParseLemonSqueezyEvent(payload, "delivery-abc")
	require.NoError(t, err)

	assert.Equal(t, models.BillingProviderLemonSqueezy, ev.Provider)
	assert.Equal(t, "delivery-abc", ev.EventID)
	assert.Equal(t, EventKindOrder, ev.Kind)
	assert.Equal(t, uint(12), ev.AppUserID)
	assert.Equal(t, "9955", ev.ProviderCustomerID)
	assert.Equal(t, "buyer@example.com", ev.CustomerEmail)
	assert.Equal(t, "44001", ev.PlanRef)
	assert.Equal(t, int64(2900), ev.PriceCents)
}

func TestParseLemonSqueezyEventSubscriptionCreated(t *testing.T) {
	payload := []byte(`{
		"meta": {"event_name": "subscription_created"},
		"data": {"id": "sub-55", "attributes": {
			"customer_id": 9955,
			"user_email": "buyer@example.com",
			"variant_id": 44002,
			"status": "active",
			"renews_at": "2026-10-01T00:00:00Z",
			"ends_at": ""
		}}
	}`)

	ev, err := ParseLemonSqueezyEvent(payload, "delivery-def")
	require.NoError(t, err)

	assert.Equal(t, EventKindSubscriptionActive, ev.Kind)
	assert.Equal(t, "sub-55", ev.ProviderSubscriptionID)
	assert.Equal(t, models.BillingStatusActive, ev.SubscriptionStatus)
	assert.Equal(t, "44002", ev.PlanRef)
	require.NotNil(t, ev.CurrentPeriodEnd)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Unix(), ev.CurrentPeriodEnd.Unix())
}

func TestParseLemonSqueezyEventSubscriptionEnded(t *testing.T) {
	for _, tt := range []struct {
		eventName string
		status    string
	}{
		{eventName: "subscription_cancelled", status: "cancelled"},
		{eventName: "subscription_expired", status: "expired"},
		{eventName: "subscription_paused", status: "paused"},
	} {
		payload := []byte(`{
			"meta": {"event_name": "` + tt.eventName + `"},
			"data": {"id": "sub-55", "attributes": {"customer_id": 9955, "variant_id": 44002, "status": "` + tt.status + `"}}
		}`)

		ev, err := ParseLemonSqueezyEvent(payload, "delivery-1")
		require.NoError(t, err)
		assert.Equal(t, EventKindSubscriptionCancelled, ev.Kind, "event %s", tt.eventName)
	}
}

func TestParseLemonSqueezyEventOnTrialEntitles(t *testing.T) {
	payload := []byte(`{
		"meta": {"event_name": "subscription_updated"},
		"data": {"id": "sub-55", "attributes": {"customer_id": 9955, "variant_id": 44002, "status": "on_trial"}}
	}`)

	ev, err := ParseLemonSqueezyEvent(payload, "delivery-2")
	require.NoError(t, err)
	assert.Equal(t, EventKindSubscriptionActive, ev.Kind)
	assert.Equal(t, models.BillingStatusTrialing, ev.SubscriptionStatus)
}

func TestParseLemonSqueezyEventUnhandledName(t *testing.T) {
	payload := []byte(`{"meta": {"event_name": "license_key_created"}, "data": {"id": "1", "attributes": {}}}`)

	ev, err := ParseLemonSqueezyEvent(payload, "delivery-3")
	require.NoError(t, err)
	assert.Equal(t, EventKindIgnored, ev.Kind)
	assert.Equal(t, "license_key_created", ev.EventType)
}

func TestParseLemonSqueezyEventMalformed(t *testing.T) {
	_, err := ParseLemonSqueezyEvent([]byte(`{{{`), "delivery-4")
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParseLemonSqueezyEvent([]byte(`{"meta": {}, "data": {"id": "1"}}`), "delivery-5")
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestParseLemonSqueezyEventHeaderIDWinsOverFallback(t *testing.T) {
	payload := []byte(`{
		"meta": {"event_name": "order_created"},
		"data": {"id": "111", "attributes": {"customer_id": 1, "first_order_item": {"variant_id": 44001}}}
	}`)

	ev, err := ParseLemonSqueezyEvent(payload, "delivery-abc")
	require.NoError(t, err)
	assert.Equal(t, "delivery-abc", ev.EventID)
}

func TestParseLemonSqueezyEventFallbackKeepsDistinctOrdersDistinct(t *testing.T) {
	orderPayload := func(dataID string) []byte {
		return []byte(`{
			"meta": {"event_name": "order_created"},
			"data": {"id": "` + dataID + `", "attributes": {"customer_id": 1, "first_order_item": {"variant_id": 44001}}}
		}`)
	}

	first, err := ParseLemonSqueezyEvent(orderPayload("111"), "")
	require.NoError(t, err)
	second, err := ParseLemonSqueezyEvent(orderPayload("222"), "")
	require.NoError(t, err)

	// Two separate purchases must never collapse onto one dedup key, or the
	// second buyer's credits would be swallowed as a duplicate.
	assert.NotEmpty(t, first.EventID)
	assert.NotEqual(t, first.EventID, second.EventID)

	// A redelivery of the same order payload does collapse.
	redelivered, err := ParseLemonSqueezyEvent(orderPayload("111"), "")
	require.NoError(t, err)
	assert.Equal(t, first.EventID, redelivered.EventID)
}

func TestParseLemonSqueezyEventFallbackKeepsRenewalsDistinct(t *testing.T) {
	renewalPayload := func(renewsAt string) []byte {
		return []byte(`{
			"meta": {"event_name": "subscription_updated"},
			"data": {"id": "sub-55", "attributes": {"customer_id": 1, "variant_id": 44002, "status": "active", "renews_at": "` + renewsAt + `"}}
		}`)
	}

	october, err := ParseLemonSqueezyEvent(renewalPayload("2026-10-01T00:00:00Z"), "")
	require.NoError(t, err)
	november, err := ParseLemonSqueezyEvent(renewalPayload("2026-11-01T00:00:00Z"), "")
	require.NoError(t, err)

	// Monthly renewals move the period end, so each renewal is its own
	// billing event and re-grants plan credits.
	assert.NotEqual(t, october.EventID, november.EventID)

	redelivered, err := ParseLemonSqueezyEvent(renewalPayload("2026-10-01T00:00:00Z"), "")
	require.NoError(t, err)
	assert.Equal(t, october.EventID, redelivered.EventID)
}

func TestNormalizeLemonSqueezyStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: models.BillingStatusActive},
		{in: "on_trial", want: models.BillingStatusTrialing},
		{in: "cancelled", want: models.BillingStatusCanceled},
		{in: "expired", want: models.BillingStatusExpired},
		{in: "paused", want: models.BillingStatusPaused},
		{in: "past_due", want: models.BillingStatusPastDue},
		{in: "unpaid", want: models.BillingStatusPastDue},
		{in: " Active ", want: models.BillingStatusActive},
		{in: "something_new", want: "something_new"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeLemonSqueezyStatus(tt.in), "status %q", tt.in)
	}
}
