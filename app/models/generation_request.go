package models

import (
	"fmt"
	"time"
)

// Generation request lifecycle states. Completed, failed and rejected are
// terminal; pending_retry -> processing is the only cycle and is bounded by
// MaxRetries.
const (
	GenerationStatusRequested    = "requested"
	GenerationStatusProcessing   = "processing"
	GenerationStatusPendingRetry = "pending_retry"
	GenerationStatusCompleted    = "completed"
	GenerationStatusFailed       = "failed"
	// Rejected is reserved for operator moderation of stored requests.
	// Nothing in the pipeline sets it; eligibility failures at submit time
	// are refused before a row is written.
	GenerationStatusRejected = "rejected"
)

// Failure codes recorded on terminally failed generation requests.
const (
	FailureCodeTransient        = "transient_error"
	FailureCodePermanent        = "permanent_error"
	FailureCodeRetriesExhausted = "max_retries_exceeded"
)

// Subject types a garment can be rendered onto.
const (
	SubjectTypeAvatar = "avatar"
	SubjectTypeModel  = "model"
)

// DefaultMaxRenderRetries bounds internal transient-failure retries per request.
const DefaultMaxRenderRetries = 3

// GenerationRequest tracks one try-on render attempt series from submission to
// a terminal state.
type GenerationRequest struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UUID              string     `gorm:"type:char(36);not null;uniqueIndex" json:"uuid"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	SubjectType       string     `gorm:"type:varchar(20);not null" json:"subject_type" validate:"oneof=avatar model"`
	SubjectID         uint       `gorm:"not null" json:"subject_id"`
	GarmentURL        string     `gorm:"type:varchar(2048);not null" json:"garment_url"`
	Status            string     `gorm:"type:varchar(20);not null;default:'requested';index:idx_generation_requests_status_next,priority:1" json:"status"`
	RetryCount        int        `gorm:"not null;default:0" json:"retry_count"`
	AttemptSeries     int        `gorm:"not null;default:1" json:"attempt_series"`
	MaxRetries        int        `gorm:"not null;default:3" json:"max_retries"`
	NextAttemptAt     *time.Time `gorm:"type:timestamp;default:null;index:idx_generation_requests_status_next,priority:2" json:"next_attempt_at,omitempty"`
	LastRetryAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_retry_at,omitempty"`
	FailureCode       string     `gorm:"type:varchar(32);default:''" json:"failure_code,omitempty"`
	FailureDetail     string     `gorm:"type:text" json:"-"`
	OutputURL         string     `gorm:"type:varchar(2048);default:''" json:"output_url,omitempty"`
	ProviderRequestID string     `gorm:"type:varchar(191);default:''" json:"provider_request_id,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether no further transitions may leave the status.
func (g *GenerationRequest) IsTerminal() bool {
	switch g.Status {
	case GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusRejected:
		return true
	default:
		return false
	}
}

// CanRetryInternally reports whether the internal retry budget allows another
// transient-failure attempt.
func (g *GenerationRequest) CanRetryInternally() bool {
	return g.RetryCount < g.MaxRetries
}

// LedgerCorrelation is the correlation id used for the ledger deduction and
// refund of the current attempt series. A manual retry after a refunded
// failure starts a new series, so each series carries at most one deduction
// and at most one refund.
func (g *GenerationRequest) LedgerCorrelation() string {
	if g.AttemptSeries <= 1 {
		return g.UUID
	}
	return fmt.Sprintf("%s:%d", g.UUID, g.AttemptSeries)
}
