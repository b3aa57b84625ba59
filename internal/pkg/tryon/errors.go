package tryon

import "errors"

// Sentinel errors surfaced to API callers. Validation and eligibility
// failures happen before any side effect; transient upstream failures are
// absorbed by the state machine and never reach the submitting caller.
var (
	ErrValidation   = errors.New("validation failed")
	ErrIneligible   = errors.New("not eligible for generation")
	ErrNotRetryable = errors.New("request is not retryable")
	ErrNotFound     = errors.New("generation request not found")
)

// IneligibleError carries the business-rule reason a submission was refused.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "not eligible for generation: " + e.Reason
}

func (e *IneligibleError) Unwrap() error {
	return ErrIneligible
}

// ValidationError carries the field-level reason a submission was malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
