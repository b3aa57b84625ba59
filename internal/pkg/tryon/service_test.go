package tryon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/credits"
)

// fakeStore keeps the orchestrator's persistence in memory, mirroring the
// guarded-transition and ledger semantics of the GORM store.
type fakeStore struct {
	mu sync.Mutex

	requests map[string]*models.GenerationRequest
	users    map[uint]*models.User
	plans    map[uint]string
	avatars  map[uint]*models.Avatar
	profiles map[uint]*models.ModelProfile

	balance    int64
	deductions map[string]int64
	refunds    map[string]bool

	due   []models.GenerationRequest
	stuck []models.GenerationRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:   make(map[string]*models.GenerationRequest),
		users:      make(map[uint]*models.User),
		plans:      make(map[uint]string),
		avatars:    make(map[uint]*models.Avatar),
		profiles:   make(map[uint]*models.ModelProfile),
		deductions: make(map[string]int64),
		refunds:    make(map[string]bool),
	}
}

func (s *fakeStore) CreateWithDeduction(req *models.GenerationRequest, cost int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance < cost {
		return credits.ErrInsufficientBalance
	}
	s.balance -= cost
	s.deductions[req.LedgerCorrelation()] = cost
	stored := *req
	s.requests[req.UUID] = &stored
	return nil
}

func (s *fakeStore) GetByUUID(uuid string) (*models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *fakeStore) Transition(uuid, fromStatus string, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[uuid]
	if !ok || req.Status != fromStatus {
		return false, nil
	}
	applyUpdates(req, updates)
	return true, nil
}

func (s *fakeStore) FailWithRefund(req *models.GenerationRequest, failureCode, detail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[req.UUID]
	if !ok || stored.Status != models.GenerationStatusProcessing {
		return false, nil
	}
	stored.Status = models.GenerationStatusFailed
	stored.FailureCode = failureCode
	stored.FailureDetail = detail

	corr := stored.LedgerCorrelation()
	if amount, deducted := s.deductions[corr]; deducted && !s.refunds[corr] {
		s.balance += amount
		s.refunds[corr] = true
	}
	return true, nil
}

func (s *fakeStore) RetryWithDeduction(req *models.GenerationRequest, cost int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[req.UUID]
	if !ok || stored.Status != models.GenerationStatusFailed {
		return false, nil
	}
	if s.balance < cost {
		return false, credits.ErrInsufficientBalance
	}
	stored.AttemptSeries++
	stored.Status = models.GenerationStatusRequested
	stored.RetryCount = 0
	stored.FailureCode = ""
	stored.FailureDetail = ""
	stored.NextAttemptAt = nil

	s.balance -= cost
	s.deductions[stored.LedgerCorrelation()] = cost

	req.AttemptSeries = stored.AttemptSeries
	req.Status = stored.Status
	req.RetryCount = 0
	return true, nil
}

func (s *fakeStore) DueForAttempt(now time.Time, redispatchGrace time.Duration, limit int) ([]models.GenerationRequest, error) {
	return s.due, nil
}

func (s *fakeStore) StuckProcessing(olderThan time.Time, limit int) ([]models.GenerationRequest, error) {
	return s.stuck, nil
}

func (s *fakeStore) GetUser(id uint) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) GetUserPlan(userID uint) (string, error) {
	if plan, ok := s.plans[userID]; ok {
		return plan, nil
	}
	return "free", nil
}

func (s *fakeStore) GetAvatar(id uint) (*models.Avatar, error) {
	if a, ok := s.avatars[id]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) GetModelProfile(id uint) (*models.ModelProfile, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func applyUpdates(req *models.GenerationRequest, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			req.Status = value.(string)
		case "retry_count":
			req.RetryCount = value.(int)
		case "next_attempt_at":
			if t, ok := value.(time.Time); ok {
				req.NextAttemptAt = &t
			} else {
				req.NextAttemptAt = nil
			}
		case "last_retry_at":
			if t, ok := value.(time.Time); ok {
				req.LastRetryAt = &t
			}
		case "failure_detail":
			req.FailureDetail = value.(string)
		case "failure_code":
			req.FailureCode = value.(string)
		case "output_url":
			req.OutputURL = value.(string)
		case "provider_request_id":
			req.ProviderRequestID = value.(string)
		}
	}
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []string
	result *RenderResult
	err    error
	// errs is consumed one entry per call before err applies, so a test can
	// script failures followed by success.
	errs []error
}

func (g *fakeGateway) Invoke(ctx context.Context, subjectImageURL, garmentImageURL string) (*RenderResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, subjectImageURL)
	err := g.err
	if len(g.errs) > 0 {
		err = g.errs[0]
		g.errs = g.errs[1:]
	}
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.result, nil
}

type fakeFinalizer struct {
	prefix string
}

func (f *fakeFinalizer) Finalize(ctx context.Context, requestUUID, transientURL string) string {
	return f.prefix + transientURL
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (n *fakeNotifier) GenerationCompleted(userID uint, requestUUID, outputURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, requestUUID)
}

func (n *fakeNotifier) GenerationFailed(userID uint, requestUUID, failureCode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, failureCode)
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
	err       error
}

func (s *fakeScheduler) ScheduleAttempt(requestUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, requestUUID)
	return nil
}

type testHarness struct {
	store     *fakeStore
	gateway   *fakeGateway
	notifier  *fakeNotifier
	scheduler *fakeScheduler
	service   *Service
}

func newTestHarness() *testHarness {
	store := newFakeStore()
	gateway := &fakeGateway{result: &RenderResult{OutputURL: "https://cdn.example.com/tmp/out.png", ProviderRequestID: "prov-1"}}
	notifier := &fakeNotifier{}
	scheduler := &fakeScheduler{}
	service := NewService(store, gateway, NewDefaultClassifier(), &fakeFinalizer{prefix: "durable-"}, notifier, scheduler)
	return &testHarness{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		scheduler: scheduler,
		service:   service,
	}
}

func (h *testHarness) seedActiveUser(id uint, plan string, balance int64) {
	h.store.users[id] = &models.User{ID: id, Status: models.STATUS_ACTIVE}
	h.store.plans[id] = plan
	h.store.balance = balance
}

func (h *testHarness) seedReadyAvatar(id, userID uint) {
	h.store.avatars[id] = &models.Avatar{
		ID:       id,
		UserID:   userID,
		ImageURL: "https://cdn.example.com/avatars/ready.png",
		Status:   models.AvatarStatusReady,
	}
}

func TestSubmitCreatesRequestAndDeductsCredit(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)

	req, err := h.service.Submit(context.Background(), SubmitInput{
		UserID:      1,
		SubjectType: models.SubjectTypeAvatar,
		SubjectID:   10,
		GarmentURL:  "https://shop.example.com/garments/1.png",
	})
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.Equal(t, models.GenerationStatusRequested, req.Status)
	assert.NotEmpty(t, req.UUID)
	assert.Equal(t, 1, req.AttemptSeries)
	assert.Equal(t, models.DefaultMaxRenderRetries, req.MaxRetries)

	assert.Equal(t, int64(4), h.store.balance)
	assert.Contains(t, h.store.deductions, req.UUID)
	assert.Equal(t, []string{req.UUID}, h.scheduler.scheduled)
}

func TestSubmitRejectsMalformedInput(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)

	tests := []struct {
		name string
		in   SubmitInput
	}{
		{name: "missing garment url", in: SubmitInput{UserID: 1, SubjectType: "avatar", SubjectID: 10}},
		{name: "garment url not a url", in: SubmitInput{UserID: 1, SubjectType: "avatar", SubjectID: 10, GarmentURL: "not-a-url"}},
		{name: "unknown subject type", in: SubmitInput{UserID: 1, SubjectType: "pet", SubjectID: 10, GarmentURL: "https://x.example.com/g.png"}},
		{name: "missing subject id", in: SubmitInput{UserID: 1, SubjectType: "avatar", GarmentURL: "https://x.example.com/g.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.Submit(context.Background(), tt.in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, h.store.requests)
}

func TestSubmitInsufficientBalanceLeavesNoTrace(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 0)
	h.seedReadyAvatar(10, 1)

	_, err := h.service.Submit(context.Background(), SubmitInput{
		UserID:      1,
		SubjectType: models.SubjectTypeAvatar,
		SubjectID:   10,
		GarmentURL:  "https://shop.example.com/garments/1.png",
	})

	var inErr *IneligibleError
	require.ErrorAs(t, err, &inErr)
	assert.Contains(t, inErr.Reason, "insufficient credit balance")

	assert.Empty(t, h.store.requests)
	assert.Empty(t, h.store.deductions)
	assert.Empty(t, h.scheduler.scheduled)
	assert.Equal(t, int64(0), h.store.balance)
}

func TestSubmitEligibilityGates(t *testing.T) {
	consented := time.Now().Add(-time.Hour)
	revoked := time.Now()

	tests := []struct {
		name   string
		seed   func(h *testHarness)
		in     SubmitInput
		reason string
	}{
		{
			name:   "unknown user",
			seed:   func(h *testHarness) {},
			in:     SubmitInput{UserID: 99, SubjectType: "avatar", SubjectID: 10, GarmentURL: "https://x.example.com/g.png"},
			reason: "user not found",
		},
		{
			name: "inactive user",
			seed: func(h *testHarness) {
				h.store.users[1] = &models.User{ID: 1, Status: models.STATUS_DISABLED}
			},
			in:     SubmitInput{UserID: 1, SubjectType: "avatar", SubjectID: 10, GarmentURL: "https://x.example.com/g.png"},
			reason: "user is not active",
		},
		{
			name: "avatar missing",
			seed: func(h *testHarness) {
				h.seedActiveUser(1, "free", 5)
			},
			in:     SubmitInput{UserID: 1, SubjectType: "avatar", SubjectID: 10, GarmentURL: "https://x.example.com/g.png"},
			reason: "avatar not found",
		},
		{
			name: "avatar owned by someone else",
			seed: func(h *testHarness) {
				h.seedActiveUser(1, "free", 5)
				h.seedReadyAvatar(10, 2)
			},
			in:     SubmitInput{UserID: 1, SubjectType: "avatar", SubjectID: 10, GarmentURL: "https://x.example.com/g.png"},
			reason: "avatar belongs to another user",
		},
		{
			name: "avatar still pending",
			seed: func(h *testHarness) {
				h.seedActiveUser(1, "free", 5)
				h.store.avatars[10] = &models.Avatar{ID: 10, UserID: 1, Status: models.AvatarStatusPending}
			},
			in:     SubmitInput{UserID: 1, SubjectType: "avatar", SubjectID: 10, GarmentURL: "https://x.example.com/g.png"},
			reason: "avatar is not ready",
		},
		{
			name: "licensed model on free plan",
			seed: func(h *testHarness) {
				h.seedActiveUser(1, "free", 5)
				h.store.profiles[20] = &models.ModelProfile{ID: 20, IsActive: true, ConsentGrantedAt: &consented}
			},
			in:     SubmitInput{UserID: 1, SubjectType: "model", SubjectID: 20, GarmentURL: "https://x.example.com/g.png"},
			reason: "plan does not include licensed models",
		},
		{
			name: "licensed model consent revoked",
			seed: func(h *testHarness) {
				h.seedActiveUser(1, "premium", 5)
				h.store.profiles[20] = &models.ModelProfile{ID: 20, IsActive: true, ConsentGrantedAt: &consented, ConsentRevokedAt: &revoked}
			},
			in:     SubmitInput{UserID: 1, SubjectType: "model", SubjectID: 20, GarmentURL: "https://x.example.com/g.png"},
			reason: "model profile inactive or consent missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness()
			tt.seed(h)
			_, err := h.service.Submit(context.Background(), tt.in)

			var inErr *IneligibleError
			require.ErrorAs(t, err, &inErr)
			assert.Equal(t, tt.reason, inErr.Reason)
			assert.Empty(t, h.store.requests)
			assert.Empty(t, h.store.deductions)
		})
	}
}

func TestSubmitLicensedModelOnPremiumPlan(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "premium", 5)
	consented := time.Now().Add(-time.Hour)
	h.store.profiles[20] = &models.ModelProfile{
		ID:               20,
		ImageURL:         "https://cdn.example.com/models/20.png",
		IsActive:         true,
		ConsentGrantedAt: &consented,
	}

	req, err := h.service.Submit(context.Background(), SubmitInput{
		UserID:      1,
		SubjectType: models.SubjectTypeModel,
		SubjectID:   20,
		GarmentURL:  "https://shop.example.com/garments/1.png",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubjectTypeModel, req.SubjectType)
	assert.Equal(t, int64(4), h.store.balance)
}

func submitTestRequest(t *testing.T, h *testHarness) *models.GenerationRequest {
	t.Helper()
	req, err := h.service.Submit(context.Background(), SubmitInput{
		UserID:      1,
		SubjectType: models.SubjectTypeAvatar,
		SubjectID:   10,
		GarmentURL:  "https://shop.example.com/garments/1.png",
	})
	require.NoError(t, err)
	return req
}

func TestRunAttemptCompletesRequest(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	err := h.service.RunAttempt(context.Background(), req.UUID)
	require.NoError(t, err)

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusCompleted, stored.Status)
	assert.Equal(t, "durable-https://cdn.example.com/tmp/out.png", stored.OutputURL)
	assert.Equal(t, "prov-1", stored.ProviderRequestID)
	assert.Equal(t, []string{req.UUID}, h.notifier.completed)

	// The credit stays spent on success.
	assert.Equal(t, int64(4), h.store.balance)
	assert.False(t, h.store.refunds[req.UUID])
}

func TestRunAttemptTransientFailureSchedulesRetry(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	h.gateway.err = &UpstreamError{StatusCode: 503, Body: "upstream busy"}

	before := time.Now()
	err := h.service.RunAttempt(context.Background(), req.UUID)
	require.NoError(t, err)

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusPendingRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextAttemptAt)
	assert.WithinDuration(t, before.Add(BackoffDelay(1)), *stored.NextAttemptAt, 2*time.Second)
	assert.Contains(t, stored.FailureDetail, "503")

	// No refund while the request is still in flight.
	assert.Equal(t, int64(4), h.store.balance)
	assert.Empty(t, h.notifier.failed)
}

func TestRunAttemptPermanentFailureRefunds(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	h.gateway.err = &UpstreamError{StatusCode: 400, Body: "invalid garment image"}

	err := h.service.RunAttempt(context.Background(), req.UUID)
	require.NoError(t, err)

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusFailed, stored.Status)
	assert.Equal(t, models.FailureCodePermanent, stored.FailureCode)
	assert.Equal(t, 0, stored.RetryCount)

	assert.Equal(t, int64(5), h.store.balance)
	assert.True(t, h.store.refunds[req.UUID])
	assert.Equal(t, []string{models.FailureCodePermanent}, h.notifier.failed)
}

func TestRunAttemptSucceedsAfterTransientRetries(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	h.gateway.errs = []error{
		&UpstreamError{StatusCode: 503, Body: "upstream busy"},
		&UpstreamError{StatusCode: 502, Body: "bad gateway"},
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, h.service.RunAttempt(context.Background(), req.UUID))
	}

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusCompleted, stored.Status)
	assert.Equal(t, "durable-https://cdn.example.com/tmp/out.png", stored.OutputURL)

	// The retry count of the successful series is retained for audit.
	assert.Equal(t, 2, stored.RetryCount)
	assert.Empty(t, stored.FailureCode)

	// Exactly one deduction across all attempts and no refund on success.
	assert.Equal(t, int64(4), h.store.balance)
	assert.Len(t, h.store.deductions, 1)
	assert.Empty(t, h.store.refunds)

	assert.Equal(t, []string{req.UUID}, h.notifier.completed)
	assert.Empty(t, h.notifier.failed)
	assert.Len(t, h.gateway.calls, 3)
}

func TestRunAttemptExhaustedRetriesFailTerminally(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	h.gateway.err = &UpstreamError{StatusCode: 503, Body: "upstream busy"}

	// Drive the request through its whole internal retry budget.
	for i := 0; i <= models.DefaultMaxRenderRetries; i++ {
		require.NoError(t, h.service.RunAttempt(context.Background(), req.UUID))
	}

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusFailed, stored.Status)
	assert.Equal(t, models.FailureCodeRetriesExhausted, stored.FailureCode)
	assert.Equal(t, models.DefaultMaxRenderRetries, stored.RetryCount)

	assert.Equal(t, int64(5), h.store.balance)
	assert.True(t, h.store.refunds[req.UUID])
}

func TestRunAttemptSkipsNonClaimableRequest(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)
	h.store.requests[req.UUID].Status = models.GenerationStatusCompleted

	err := h.service.RunAttempt(context.Background(), req.UUID)
	require.NoError(t, err)
	assert.Empty(t, h.gateway.calls)
}

func TestRunAttemptUnknownRequestIsDropped(t *testing.T) {
	h := newTestHarness()
	err := h.service.RunAttempt(context.Background(), "no-such-uuid")
	assert.NoError(t, err)
}

func TestRunAttemptVanishedSubjectFailsPermanently(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)
	delete(h.store.avatars, 10)

	err := h.service.RunAttempt(context.Background(), req.UUID)
	require.NoError(t, err)

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusFailed, stored.Status)
	assert.Equal(t, models.FailureCodePermanent, stored.FailureCode)
	assert.Equal(t, int64(5), h.store.balance)
	assert.Empty(t, h.gateway.calls)
}

func TestRetryStartsFreshSeriesWithNewDeduction(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	h.gateway.err = &UpstreamError{StatusCode: 400, Body: "bad image"}
	require.NoError(t, h.service.RunAttempt(context.Background(), req.UUID))
	require.Equal(t, models.GenerationStatusFailed, h.store.requests[req.UUID].Status)
	require.Equal(t, int64(5), h.store.balance)

	retried, err := h.service.Retry(context.Background(), req.UUID, 1)
	require.NoError(t, err)

	assert.Equal(t, models.GenerationStatusRequested, retried.Status)
	assert.Equal(t, 2, retried.AttemptSeries)
	assert.Equal(t, 0, retried.RetryCount)

	assert.Equal(t, int64(4), h.store.balance)
	assert.Contains(t, h.store.deductions, req.UUID+":2")
	assert.Contains(t, h.scheduler.scheduled, req.UUID)
}

func TestRetryRefusedForNonFailedRequest(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	for _, status := range []string{
		models.GenerationStatusRequested,
		models.GenerationStatusProcessing,
		models.GenerationStatusPendingRetry,
		models.GenerationStatusCompleted,
		models.GenerationStatusRejected,
	} {
		h.store.requests[req.UUID].Status = status
		_, err := h.service.Retry(context.Background(), req.UUID, 1)
		assert.ErrorIs(t, err, ErrNotRetryable, "status %s", status)
	}
}

func TestRetryHiddenFromOtherUsers(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)
	h.store.requests[req.UUID].Status = models.GenerationStatusFailed

	_, err := h.service.Retry(context.Background(), req.UUID, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetryRefusedOnInsufficientBalance(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 1)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)

	h.store.requests[req.UUID].Status = models.GenerationStatusFailed
	h.store.balance = 0

	_, err := h.service.Retry(context.Background(), req.UUID, 1)
	var inErr *IneligibleError
	require.ErrorAs(t, err, &inErr)
	assert.Contains(t, inErr.Reason, "insufficient credit balance")

	assert.Equal(t, models.GenerationStatusFailed, h.store.requests[req.UUID].Status)
	assert.Equal(t, 1, h.store.requests[req.UUID].AttemptSeries)
}

func TestRecoverStuckTreatsLostAttemptAsTransient(t *testing.T) {
	h := newTestHarness()
	h.seedActiveUser(1, "free", 5)
	h.seedReadyAvatar(10, 1)
	req := submitTestRequest(t, h)
	h.store.requests[req.UUID].Status = models.GenerationStatusProcessing
	h.store.stuck = []models.GenerationRequest{*h.store.requests[req.UUID]}

	recovered, err := h.service.RecoverStuck(10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stored := h.store.requests[req.UUID]
	assert.Equal(t, models.GenerationStatusPendingRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestDispatchDueSchedulesEachRequest(t *testing.T) {
	h := newTestHarness()
	h.store.due = []models.GenerationRequest{
		{UUID: "req-a"},
		{UUID: "req-b"},
	}

	dispatched, err := h.service.DispatchDue(2*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.Equal(t, []string{"req-a", "req-b"}, h.scheduler.scheduled)
}

func TestDispatchDueCountsOnlySuccessfulEnqueues(t *testing.T) {
	h := newTestHarness()
	h.store.due = []models.GenerationRequest{{UUID: "req-a"}}
	h.scheduler.err = errors.New("queue unavailable")

	dispatched, err := h.service.DispatchDue(2*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{retryCount: 0, want: time.Second},
		{retryCount: 1, want: time.Second},
		{retryCount: 2, want: 2 * time.Second},
		{retryCount: 3, want: 4 * time.Second},
		{retryCount: 4, want: 8 * time.Second},
		{retryCount: 6, want: 32 * time.Second},
		{retryCount: 7, want: 32 * time.Second},
		{retryCount: 100, want: 32 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}
