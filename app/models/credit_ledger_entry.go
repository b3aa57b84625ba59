package models

import "time"

// Ledger entry reasons. Every balance change carries exactly one reason and a
// correlation id pointing at the generation request or billing event that
// caused it.
const (
	LedgerReasonRenderDeduction = "render_deduction"
	LedgerReasonRenderRefund    = "render_refund"
	LedgerReasonPurchaseCredit  = "purchase_credit"
	LedgerReasonPlanGrant       = "plan_grant"
	LedgerReasonAdminAdjustment = "admin_adjustment"
)

// CreditLedgerEntry is an append-only record of a single balance mutation.
// ResultingBalance snapshots the cached balance after applying Delta so the
// history is auditable without replay.
//
// The unique (reason, correlation_id) index is what makes refunds and credits
// idempotent: a second insert for the same cause is rejected by the database
// even if the pre-check raced.
type CreditLedgerEntry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	Delta            int64     `gorm:"not null" json:"delta"`
	ResultingBalance int64     `gorm:"not null" json:"resulting_balance"`
	Reason           string    `gorm:"type:varchar(32);not null;index:ux_credit_ledger_reason_correlation,unique,priority:1" json:"reason"`
	CorrelationID    string    `gorm:"type:varchar(191);not null;index:ux_credit_ledger_reason_correlation,unique,priority:2" json:"correlation_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// CreditBalance caches the current balance per owner so reads do not replay
// the ledger. It is only ever written in the same transaction as an entry
// insert, under a row lock.
type CreditBalance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
