package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeRenderAttempt JobType = "render_attempt"
	JobTypeIdentitySync  JobType = "identity_sync"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// RenderAttemptJobPayload carries one generation attempt dispatch. The
// request UUID is the only state: the orchestrator reloads everything else
// from the database, so a duplicate or stale job is a harmless no-op.
type RenderAttemptJobPayload struct {
	RequestUUID string `json:"request_uuid"`
}

// ToMap converts the payload to a map for storage
func (p RenderAttemptJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"request_uuid": p.RequestUUID,
	}
}

// RenderAttemptJobPayloadFromMap creates a payload from a map
func RenderAttemptJobPayloadFromMap(data map[string]interface{}) (*RenderAttemptJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload RenderAttemptJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IdentitySyncJobPayload carries a plan snapshot push to the external
// identity store.
type IdentitySyncJobPayload struct {
	UserID     uint   `json:"user_id"`
	Plan       string `json:"plan"`
	IsPremium  bool   `json:"is_premium"`
	PriceCents int64  `json:"price_cents"`
	Provider   string `json:"provider"`
}

// ToMap converts the payload to a map for storage
func (p IdentitySyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     p.UserID,
		"plan":        p.Plan,
		"is_premium":  p.IsPremium,
		"price_cents": p.PriceCents,
		"provider":    p.Provider,
	}
}

// IdentitySyncJobPayloadFromMap creates a payload from a map
func IdentitySyncJobPayloadFromMap(data map[string]interface{}) (*IdentitySyncJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload IdentitySyncJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
