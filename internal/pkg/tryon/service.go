package tryon

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/credits"
	"github.com/supuni9622/ModelSnap/internal/pkg/entitlements"
)

// AssetFinalizer turns the gateway's transient output URL into a durable one.
// Implementations degrade gracefully: on storage failure they return the
// transient URL unchanged.
type AssetFinalizer interface {
	Finalize(ctx context.Context, requestUUID, transientURL string) string
}

// Notifier is informed of terminal states, fire-and-forget. Failures here
// never roll back the core.
type Notifier interface {
	GenerationCompleted(userID uint, requestUUID, outputURL string)
	GenerationFailed(userID uint, requestUUID, failureCode string)
}

// AttemptScheduler dispatches a render attempt for asynchronous execution.
// Lost dispatches are recovered by the due-attempt sweep, so scheduling is
// best-effort.
type AttemptScheduler interface {
	ScheduleAttempt(requestUUID string) error
}

// SubmitInput is the validated submission payload.
type SubmitInput struct {
	UserID      uint   `validate:"required"`
	SubjectType string `validate:"required,oneof=avatar model"`
	SubjectID   uint   `validate:"required"`
	GarmentURL  string `validate:"required,url,max=2048"`
}

// Service drives a generation request through its lifecycle: eligibility
// check, ledger reservation, gateway call, asset finalization, terminal state.
type Service struct {
	store      Store
	gateway    GatewayClient
	classifier Classifier
	finalizer  AssetFinalizer
	notifier   Notifier
	scheduler  AttemptScheduler
	validate   *validator.Validate

	// attemptTimeout bounds one gateway call so a slow upstream cannot
	// starve the workers.
	attemptTimeout time.Duration
}

// NewService wires the orchestrator from injected collaborators.
func NewService(store Store, gateway GatewayClient, classifier Classifier, finalizer AssetFinalizer, notifier Notifier, scheduler AttemptScheduler) *Service {
	return &Service{
		store:          store,
		gateway:        gateway,
		classifier:     classifier,
		finalizer:      finalizer,
		notifier:       notifier,
		scheduler:      scheduler,
		validate:       validator.New(),
		attemptTimeout: 90 * time.Second,
	}
}

// Submit runs the eligibility gate and, on pass, creates the request with its
// credit deduction in one transaction, then schedules the first attempt.
// Eligibility failures return before any side effect: no row, no entry.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.GenerationRequest, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	user, err := s.store.GetUser(in.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &IneligibleError{Reason: "user not found"}
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, &IneligibleError{Reason: "user is not active"}
	}

	plan, err := s.store.GetUserPlan(in.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.checkSubject(in, entitlements.Normalize(plan)); err != nil {
		return nil, err
	}

	req := &models.GenerationRequest{
		UUID:          uuid.New().String(),
		UserID:        in.UserID,
		SubjectType:   in.SubjectType,
		SubjectID:     in.SubjectID,
		GarmentURL:    in.GarmentURL,
		Status:        models.GenerationStatusRequested,
		MaxRetries:    models.DefaultMaxRenderRetries,
		AttemptSeries: 1,
	}

	cost := entitlements.RenderCreditCost(entitlements.Normalize(plan))
	if err := s.store.CreateWithDeduction(req, cost); err != nil {
		if errors.Is(err, credits.ErrInsufficientBalance) {
			return nil, &IneligibleError{Reason: "insufficient credit balance"}
		}
		return nil, err
	}

	if err := s.scheduler.ScheduleAttempt(req.UUID); err != nil {
		// The due-attempt sweep redispatches requested rows, so a lost
		// enqueue delays the attempt instead of losing it.
		log.Errorf("[TryOn] Failed to schedule attempt for %s: %v", req.UUID, err)
	}

	return req, nil
}

// Get returns a generation request by its public id.
func (s *Service) Get(ctx context.Context, requestUUID string) (*models.GenerationRequest, error) {
	_ = ctx
	return s.store.GetByUUID(requestUUID)
}

// Retry re-opens a failed request at the caller's discretion, even after the
// internal retry budget was exhausted. The failed series was refunded, so the
// new series starts with a fresh deduction; insufficient balance refuses the
// retry with no state change.
func (s *Service) Retry(ctx context.Context, requestUUID string, actorID uint) (*models.GenerationRequest, error) {
	req, err := s.store.GetByUUID(requestUUID)
	if err != nil {
		return nil, err
	}
	if req.UserID != actorID {
		return nil, ErrNotFound
	}
	if req.Status != models.GenerationStatusFailed {
		return nil, ErrNotRetryable
	}

	plan, err := s.store.GetUserPlan(req.UserID)
	if err != nil {
		return nil, err
	}
	cost := entitlements.RenderCreditCost(entitlements.Normalize(plan))

	claimed, err := s.store.RetryWithDeduction(req, cost)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientBalance) {
			return nil, &IneligibleError{Reason: "insufficient credit balance"}
		}
		return nil, err
	}
	if !claimed {
		return nil, ErrNotRetryable
	}

	if err := s.scheduler.ScheduleAttempt(req.UUID); err != nil {
		log.Errorf("[TryOn] Failed to schedule manual retry for %s: %v", req.UUID, err)
	}
	return req, nil
}

// RunAttempt is the worker entry point: claim the request, call the gateway,
// and apply exactly one outcome transition. Safe to invoke concurrently and
// repeatedly for the same request; the guarded transitions make duplicate
// attempts no-ops.
func (s *Service) RunAttempt(ctx context.Context, requestUUID string) error {
	req, err := s.store.GetByUUID(requestUUID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warnf("[TryOn] Attempt for unknown request %s dropped", requestUUID)
			return nil
		}
		return err
	}

	claimed, err := s.claimProcessing(req)
	if err != nil {
		return err
	}
	if !claimed {
		log.Debugf("[TryOn] Request %s not claimable (status=%s), skipping attempt", req.UUID, req.Status)
		return nil
	}
	req.Status = models.GenerationStatusProcessing

	subjectURL, err := s.subjectImageURL(req)
	if err != nil {
		// Subject vanished between submission and attempt; permanent.
		return s.failTerminally(req, models.FailureCodePermanent, "subject no longer available")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	result, gatewayErr := s.gateway.Invoke(attemptCtx, subjectURL, req.GarmentURL)
	if gatewayErr == nil {
		return s.complete(attemptCtx, req, result)
	}

	return s.HandleFailure(req, gatewayErr)
}

// HandleFailure applies the retry/refund policy for one failed attempt. Also
// used by the stuck-processing sweep, which treats a lost attempt as a
// transient failure through the same guarded transitions.
func (s *Service) HandleFailure(req *models.GenerationRequest, cause error) error {
	cls := s.classifier.Classify(cause)

	if cls.Transient && req.CanRetryInternally() {
		retryCount := req.RetryCount + 1
		delay := BackoffDelay(retryCount)
		now := time.Now()
		next := now.Add(delay)
		claimed, err := s.store.Transition(req.UUID, models.GenerationStatusProcessing, map[string]interface{}{
			"status":          models.GenerationStatusPendingRetry,
			"retry_count":     retryCount,
			"next_attempt_at": next,
			"last_retry_at":   now,
			"failure_detail":  cls.Message,
		})
		if err != nil {
			return err
		}
		if claimed {
			log.Infof("[TryOn] Request %s attempt failed transiently, retry %d/%d in %s", req.UUID, retryCount, req.MaxRetries, delay)
		}
		return nil
	}

	failureCode := models.FailureCodePermanent
	if cls.Transient {
		failureCode = models.FailureCodeRetriesExhausted
	}
	return s.failTerminally(req, failureCode, cls.Message)
}

// RecoverStuck sweeps requests stuck in processing past the grace period and
// pushes them through the transient-failure path. A request that completed
// concurrently is untouched because the status guard no longer matches.
func (s *Service) RecoverStuck(grace time.Duration, limit int) (int, error) {
	stuck, err := s.store.StuckProcessing(time.Now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for i := range stuck {
		req := stuck[i]
		log.Warnf("[TryOn] Recovering request %s stuck in processing since %s", req.UUID, req.UpdatedAt)
		if err := s.HandleFailure(&req, context.DeadlineExceeded); err != nil {
			log.Errorf("[TryOn] Failed to recover stuck request %s: %v", req.UUID, err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// DispatchDue schedules attempts for requests whose backoff elapsed or whose
// original enqueue was lost.
func (s *Service) DispatchDue(redispatchGrace time.Duration, limit int) (int, error) {
	due, err := s.store.DueForAttempt(time.Now(), redispatchGrace, limit)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for i := range due {
		if err := s.scheduler.ScheduleAttempt(due[i].UUID); err != nil {
			log.Errorf("[TryOn] Failed to dispatch due attempt for %s: %v", due[i].UUID, err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// BackoffDelay returns the bounded exponential backoff before retry attempt
// retryCount: 1s, 2s, 4s for attempts 1-3.
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount > 6 {
		retryCount = 6
	}
	return time.Duration(1<<uint(retryCount-1)) * time.Second
}

func (s *Service) claimProcessing(req *models.GenerationRequest) (bool, error) {
	for _, from := range []string{models.GenerationStatusRequested, models.GenerationStatusPendingRetry} {
		claimed, err := s.store.Transition(req.UUID, from, map[string]interface{}{
			"status": models.GenerationStatusProcessing,
		})
		if err != nil {
			return false, err
		}
		if claimed {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) complete(ctx context.Context, req *models.GenerationRequest, result *RenderResult) error {
	outputURL := s.finalizer.Finalize(ctx, req.UUID, result.OutputURL)

	claimed, err := s.store.Transition(req.UUID, models.GenerationStatusProcessing, map[string]interface{}{
		"status":              models.GenerationStatusCompleted,
		"output_url":          outputURL,
		"provider_request_id": result.ProviderRequestID,
	})
	if err != nil {
		return err
	}
	if claimed {
		log.Infof("[TryOn] Request %s completed", req.UUID)
		s.notifier.GenerationCompleted(req.UserID, req.UUID, outputURL)
	}
	return nil
}

func (s *Service) failTerminally(req *models.GenerationRequest, failureCode, detail string) error {
	claimed, err := s.store.FailWithRefund(req, failureCode, detail)
	if err != nil {
		return err
	}
	if claimed {
		log.Warnf("[TryOn] Request %s failed terminally (%s): %s", req.UUID, failureCode, detail)
		s.notifier.GenerationFailed(req.UserID, req.UUID, failureCode)
	}
	return nil
}

func (s *Service) subjectImageURL(req *models.GenerationRequest) (string, error) {
	switch req.SubjectType {
	case models.SubjectTypeAvatar:
		avatar, err := s.store.GetAvatar(req.SubjectID)
		if err != nil {
			return "", err
		}
		if !avatar.IsRenderable() {
			return "", errors.New("avatar not renderable")
		}
		return avatar.ImageURL, nil
	case models.SubjectTypeModel:
		profile, err := s.store.GetModelProfile(req.SubjectID)
		if err != nil {
			return "", err
		}
		if !profile.IsRenderable() {
			return "", errors.New("model profile not renderable")
		}
		return profile.ImageURL, nil
	default:
		return "", errors.New("unknown subject type")
	}
}

func (s *Service) checkSubject(in SubmitInput, plan entitlements.Plan) error {
	switch in.SubjectType {
	case models.SubjectTypeAvatar:
		avatar, err := s.store.GetAvatar(in.SubjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &IneligibleError{Reason: "avatar not found"}
			}
			return err
		}
		if avatar.UserID != in.UserID {
			return &IneligibleError{Reason: "avatar belongs to another user"}
		}
		if !avatar.IsRenderable() {
			return &IneligibleError{Reason: "avatar is not ready"}
		}
	case models.SubjectTypeModel:
		if !entitlements.CanUseLicensedModels(plan) {
			return &IneligibleError{Reason: "plan does not include licensed models"}
		}
		profile, err := s.store.GetModelProfile(in.SubjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &IneligibleError{Reason: "model profile not found"}
			}
			return err
		}
		if !profile.IsRenderable() {
			return &IneligibleError{Reason: "model profile inactive or consent missing"}
		}
	}
	return nil
}
