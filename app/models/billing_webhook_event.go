package models

import "time"

// BillingWebhookEvent stores provider webhook payloads with deduplication
// metadata for idempotent processing. (provider, provider_event_id) is the
// claim key: the unique index turns at-least-once delivery into at-most-once
// effect across horizontally scaled receivers.
//
// A row with a null ProcessedAt was seen but not durably applied (for example
// a crash mid-apply); redelivery re-applies it idempotently instead of
// skipping it.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsProcessed reports whether the event was durably applied (or dead-lettered).
func (e *BillingWebhookEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}
