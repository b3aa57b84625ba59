package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supuni9622/ModelSnap/app/models"
)

// ErrMalformedEvent means the payload could not be parsed into a normalized
// event; the ingress responds 400 and the provider gives up redelivery.
var ErrMalformedEvent = errors.New("malformed webhook event")

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ID          string            `json:"id"`
	Customer    string            `json:"customer"`
	Mode        string            `json:"mode"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type stripeSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ParseStripeEvent normalizes a verified Stripe payload. Unhandled event
// types come back as EventKindIgnored so they are still recorded for dedup.
func ParseStripeEvent(payload []byte) (*NormalizedEvent, error) {
	var envelope stripeEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	ev := &NormalizedEvent{
		Provider:  models.BillingProviderStripe,
		EventID:   envelope.ID,
		EventType: envelope.Type,
		Kind:      EventKindIgnored,
	}

	switch envelope.Type {
	case "checkout.session.completed":
		var session stripeCheckoutSession
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Kind = EventKindOrder
		ev.ProviderCustomerID = session.Customer
		ev.CustomerEmail = session.CustomerDetails.Email
		ev.AppUserID = parseMetadataUserID(session.Metadata)
		ev.PlanRef = session.Metadata["price_id"]
		ev.PriceCents = session.AmountTotal
		if session.Mode == "subscription" {
			// Plan state arrives with customer.subscription.created; the
			// session itself only links customer to user.
			ev.Kind = EventKindIgnored
		}

	case "customer.subscription.created", "customer.subscription.updated":
		sub, err := parseStripeSubscription(envelope.Data.Object)
		if err != nil {
			return nil, err
		}
		applyStripeSubscription(ev, sub)
		if isEntitlingStatus(sub.Status) {
			ev.Kind = EventKindSubscriptionActive
		} else {
			ev.Kind = EventKindSubscriptionCancelled
		}

	case "customer.subscription.deleted":
		sub, err := parseStripeSubscription(envelope.Data.Object)
		if err != nil {
			return nil, err
		}
		applyStripeSubscription(ev, sub)
		ev.Kind = EventKindSubscriptionCancelled
	}

	return ev, nil
}

func parseStripeSubscription(raw json.RawMessage) (*stripeSubscription, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrMalformedEvent)
	}
	return &sub, nil
}

func applyStripeSubscription(ev *NormalizedEvent, sub *stripeSubscription) {
	ev.ProviderCustomerID = sub.Customer
	ev.AppUserID = parseMetadataUserID(sub.Metadata)
	ev.ProviderSubscriptionID = sub.ID
	ev.SubscriptionStatus = strings.ToLower(sub.Status)
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0)
		ev.CurrentPeriodEnd = &end
	}
	if len(sub.Items.Data) > 0 {
		price := sub.Items.Data[0].Price
		ev.PlanRef = price.ID
		ev.PriceCents = price.UnitAmount
		ev.BillingInterval = normalizeInterval(price.Recurring.Interval)
	}
}

func parseMetadataUserID(metadata map[string]string) uint {
	raw := strings.TrimSpace(metadata["user_id"])
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}
