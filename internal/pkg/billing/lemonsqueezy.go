package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supuni9622/ModelSnap/app/models"
)

type lemonSqueezyEnvelope struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string          `json:"id"`
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
}

type lemonSqueezyOrder struct {
	CustomerID int64  `json:"customer_id"`
	UserEmail  string `json:"user_email"`
	TotalUSD   int64  `json:"total"`
	FirstOrderItem struct {
		VariantID int64 `json:"variant_id"`
	} `json:"first_order_item"`
}

type lemonSqueezySubscription struct {
	CustomerID int64  `json:"customer_id"`
	UserEmail  string `json:"user_email"`
	VariantID  int64  `json:"variant_id"`
	Status     string `json:"status"`
	RenewsAt   string `json:"renews_at"`
	EndsAt     string `json:"ends_at"`
}

// ParseLemonSqueezyEvent normalizes a verified Lemon Squeezy payload. The
// event id is taken from the delivery header by the caller because Lemon
// Squeezy does not embed one in the body; when the header is absent too, a
// fallback id is derived from the payload so that redeliveries collapse while
// distinct billing events never share a dedup key.
func ParseLemonSqueezyEvent(payload []byte, eventID string) (*NormalizedEvent, error) {
	var envelope lemonSqueezyEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	eventName := strings.TrimSpace(envelope.Meta.EventName)
	if eventName == "" {
		return nil, fmt.Errorf("%w: missing meta.event_name", ErrMalformedEvent)
	}

	ev := &NormalizedEvent{
		Provider:  models.BillingProviderLemonSqueezy,
		EventID:   eventID,
		EventType: eventName,
		Kind:      EventKindIgnored,
		AppUserID: parseMetadataUserID(envelope.Meta.CustomData),
	}

	switch eventName {
	case "order_created":
		var order lemonSqueezyOrder
		if err := json.Unmarshal(envelope.Data.Attributes, &order); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Kind = EventKindOrder
		ev.ProviderCustomerID = strconv.FormatInt(order.CustomerID, 10)
		ev.CustomerEmail = order.UserEmail
		ev.PlanRef = strconv.FormatInt(order.FirstOrderItem.VariantID, 10)
		ev.PriceCents = order.TotalUSD

	case "subscription_created", "subscription_updated", "subscription_resumed",
		"subscription_cancelled", "subscription_expired", "subscription_paused":
		var sub lemonSqueezySubscription
		if err := json.Unmarshal(envelope.Data.Attributes, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.ProviderCustomerID = strconv.FormatInt(sub.CustomerID, 10)
		ev.CustomerEmail = sub.UserEmail
		ev.PlanRef = strconv.FormatInt(sub.VariantID, 10)
		ev.ProviderSubscriptionID = envelope.Data.ID
		ev.SubscriptionStatus = normalizeLemonSqueezyStatus(sub.Status)
		if end := parseLemonSqueezyTime(sub.EndsAt); end != nil {
			ev.CurrentPeriodEnd = end
		} else if renews := parseLemonSqueezyTime(sub.RenewsAt); renews != nil {
			ev.CurrentPeriodEnd = renews
		}
		if isEntitlingStatus(ev.SubscriptionStatus) {
			ev.Kind = EventKindSubscriptionActive
		} else {
			ev.Kind = EventKindSubscriptionCancelled
		}
	}

	if ev.EventID == "" {
		ev.EventID = fallbackLemonSqueezyEventID(eventName, envelope.Data.ID, ev.CurrentPeriodEnd)
	}

	return ev, nil
}

// fallbackLemonSqueezyEventID builds a dedup key from the event name and the
// affected row id. The period end is appended for subscription events: each
// renewal moves it forward, so renewals of one subscription stay distinct
// billing events while true redeliveries still collapse.
func fallbackLemonSqueezyEventID(eventName, dataID string, periodEnd *time.Time) string {
	id := eventName + ":" + dataID
	if periodEnd != nil {
		id += ":" + strconv.FormatInt(periodEnd.Unix(), 10)
	}
	return id
}

func normalizeLemonSqueezyStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "on_trial":
		return models.BillingStatusTrialing
	case "cancelled":
		return models.BillingStatusCanceled
	case "expired":
		return models.BillingStatusExpired
	case "paused":
		return models.BillingStatusPaused
	case "past_due", "unpaid":
		return models.BillingStatusPastDue
	case "active":
		return models.BillingStatusActive
	default:
		return strings.ToLower(strings.TrimSpace(status))
	}
}

func parseLemonSqueezyTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
