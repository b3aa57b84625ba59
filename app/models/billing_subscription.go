package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	BillingStatusActive     = "active"
	BillingStatusTrialing   = "trialing"
	BillingStatusPastDue    = "past_due"
	BillingStatusCanceled   = "canceled"
	BillingStatusExpired    = "expired"
	BillingStatusPaused     = "paused"
	BillingStatusIncomplete = "incomplete"
)

// BillingSubscription mirrors a provider subscription and maps it to an
// internal plan. The effective user plan is recomputed from all of a user's
// subscription rows whenever one changes, so out-of-order provider events
// converge on the same result.
type BillingSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:idx_billing_subscriptions_provider_status,priority:1;index:ux_billing_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderPlanRef        string     `gorm:"type:varchar(191);not null;index" json:"provider_plan_ref"`
	InternalPlan           string     `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_plan"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index:idx_billing_subscriptions_provider_status,priority:2" json:"status"`
	PriceCents             int64      `gorm:"not null;default:0" json:"price_cents"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
