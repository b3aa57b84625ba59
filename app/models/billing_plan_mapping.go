package models

import "time"

// Mapping kinds: a provider price/variant either maps to a subscription plan
// or to a one-time credit package.
const (
	MappingKindPlan          = "plan"
	MappingKindCreditPackage = "credit_package"
)

// BillingPlanMapping maps provider-specific price/variant references to either
// an internal entitlement plan (with optional plan-included credits) or a
// one-time credit package.
type BillingPlanMapping struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_billing_plan_mappings_ref,unique,priority:1;index" json:"provider"`
	ProviderPlanRef string    `gorm:"type:varchar(191);not null;index:ux_billing_plan_mappings_ref,unique,priority:2" json:"provider_plan_ref"`
	MappingKind     string    `gorm:"type:varchar(20);not null;default:'plan';index" json:"mapping_kind"`
	InternalPlan    string    `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_plan"`
	Credits         int64     `gorm:"not null;default:0" json:"credits"`
	PriceCents      int64     `gorm:"not null;default:0" json:"price_cents"`
	BillingInterval string    `gorm:"type:varchar(16);not null;default:'unknown';index:ux_billing_plan_mappings_ref,unique,priority:3" json:"billing_interval"`
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
