package billing

import "time"

// EventKind is the provider-agnostic category a webhook event maps to after
// normalization. Both provider adapters feed the same reconciliation
// pipeline through this shape.
type EventKind string

const (
	// EventKindOrder is a one-time payment (credit package or plan purchase).
	EventKindOrder EventKind = "order"
	// EventKindSubscriptionActive covers created/updated subscriptions in an
	// entitling state.
	EventKindSubscriptionActive EventKind = "subscription_active"
	// EventKindSubscriptionCancelled covers cancelled/expired subscriptions.
	EventKindSubscriptionCancelled EventKind = "subscription_cancelled"
	// EventKindIgnored is a recognized but irrelevant event type; it is still
	// recorded and marked processed for dedup.
	EventKindIgnored EventKind = "ignored"
)

// NormalizedEvent is the provider-agnostic shape of one webhook delivery.
type NormalizedEvent struct {
	Provider           string
	EventID            string
	EventType          string
	Kind               EventKind
	ProviderCustomerID string
	CustomerEmail      string
	// AppUserID is the application user id embedded in provider metadata at
	// checkout time; zero when absent.
	AppUserID uint
	// PlanRef is the provider price/variant reference resolved against
	// BillingPlanMapping.
	PlanRef                string
	ProviderSubscriptionID string
	SubscriptionStatus     string
	BillingInterval        string
	PriceCents             int64
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// PlanSnapshot is what gets mirrored into the external identity store after a
// billing mutation commits.
type PlanSnapshot struct {
	Plan       string `json:"plan"`
	IsPremium  bool   `json:"is_premium"`
	PriceCents int64  `json:"price_cents"`
	Provider   string `json:"provider"`
}
