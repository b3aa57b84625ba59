package tryon

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/credits"
)

// Store provides the orchestrator's persistence operations. Status changes go
// through guarded transitions (UPDATE ... WHERE status = from) so transitions
// within one request stay strictly sequential even with concurrent workers,
// and ledger mutations ride in the same transaction as the state change that
// caused them.
type Store interface {
	CreateWithDeduction(req *models.GenerationRequest, cost int64) error
	GetByUUID(uuid string) (*models.GenerationRequest, error)
	Transition(uuid, fromStatus string, updates map[string]interface{}) (bool, error)
	FailWithRefund(req *models.GenerationRequest, failureCode, detail string) (bool, error)
	RetryWithDeduction(req *models.GenerationRequest, cost int64) (bool, error)
	DueForAttempt(now time.Time, redispatchGrace time.Duration, limit int) ([]models.GenerationRequest, error)
	StuckProcessing(olderThan time.Time, limit int) ([]models.GenerationRequest, error)

	GetUser(id uint) (*models.User, error)
	GetUserPlan(userID uint) (string, error)
	GetAvatar(id uint) (*models.Avatar, error)
	GetModelProfile(id uint) (*models.ModelProfile, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a generation store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// CreateWithDeduction inserts the request and deducts its credit cost in one
// transaction. An insufficient balance aborts the whole transaction, so an
// ineligible submission leaves no row and no ledger entry behind.
func (s *gormStore) CreateWithDeduction(req *models.GenerationRequest, cost int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		_, err := credits.ApplyDeduction(credits.NewRepository(tx), req.UserID, cost, req.LedgerCorrelation())
		return err
	})
}

func (s *gormStore) GetByUUID(uuid string) (*models.GenerationRequest, error) {
	var req models.GenerationRequest
	err := s.db.Where("uuid = ?", uuid).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Transition performs an optimistic status change. Returns false when the row
// was not in fromStatus anymore, which callers treat as "someone else won".
func (s *gormStore) Transition(uuid, fromStatus string, updates map[string]interface{}) (bool, error) {
	res := s.db.Model(&models.GenerationRequest{}).
		Where("uuid = ? AND status = ?", uuid, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FailWithRefund moves a processing request to failed and refunds the
// deduction of the current attempt series, atomically. The refund is
// idempotent per series, and the guarded transition means a concurrently
// completed request is never refunded.
func (s *gormStore) FailWithRefund(req *models.GenerationRequest, failureCode, detail string) (bool, error) {
	claimed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GenerationRequest{}).
			Where("uuid = ? AND status = ?", req.UUID, models.GenerationStatusProcessing).
			Updates(map[string]interface{}{
				"status":         models.GenerationStatusFailed,
				"failure_code":   failureCode,
				"failure_detail": detail,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true

		repo := credits.NewRepository(tx)
		deduction, err := repo.FindEntry(models.LedgerReasonRenderDeduction, req.LedgerCorrelation())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		_, err = credits.ApplyCredit(repo, req.UserID, -deduction.Delta, req.LedgerCorrelation(), models.LedgerReasonRenderRefund)
		return err
	})
	return claimed, err
}

// RetryWithDeduction re-opens a failed request as a new attempt series with a
// fresh deduction, atomically. The previous series was refunded on failure,
// so the net ledger effect stays one outstanding deduction at most.
func (s *gormStore) RetryWithDeduction(req *models.GenerationRequest, cost int64) (bool, error) {
	claimed := false
	nextSeries := req.AttemptSeries + 1
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GenerationRequest{}).
			Where("uuid = ? AND status = ?", req.UUID, models.GenerationStatusFailed).
			Updates(map[string]interface{}{
				"status":         models.GenerationStatusRequested,
				"retry_count":    0,
				"attempt_series": nextSeries,
				"failure_code":   "",
				"failure_detail": "",
				"next_attempt_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true

		retried := *req
		retried.AttemptSeries = nextSeries
		_, err := credits.ApplyDeduction(credits.NewRepository(tx), req.UserID, cost, retried.LedgerCorrelation())
		return err
	})
	if err != nil {
		return false, err
	}
	if claimed {
		req.AttemptSeries = nextSeries
		req.Status = models.GenerationStatusRequested
		req.RetryCount = 0
	}
	return claimed, err
}

// DueForAttempt returns requests whose retry backoff elapsed, plus requested
// rows whose enqueue was lost (older than the redispatch grace). The sweep is
// what makes retries survive process restarts.
func (s *gormStore) DueForAttempt(now time.Time, redispatchGrace time.Duration, limit int) ([]models.GenerationRequest, error) {
	var reqs []models.GenerationRequest
	cutoff := now.Add(-redispatchGrace)
	q := s.db.
		Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND updated_at <= ?)",
			models.GenerationStatusPendingRetry, now,
			models.GenerationStatusRequested, cutoff).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&reqs).Error
	return reqs, err
}

// StuckProcessing returns requests sitting in processing past the grace
// period, to be recovered as transient failures.
func (s *gormStore) StuckProcessing(olderThan time.Time, limit int) ([]models.GenerationRequest, error) {
	var reqs []models.GenerationRequest
	q := s.db.
		Where("status = ? AND updated_at <= ?", models.GenerationStatusProcessing, olderThan).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&reqs).Error
	return reqs, err
}

func (s *gormStore) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) GetUserPlan(userID uint) (string, error) {
	us, err := models.GetOrCreateUserSettings(s.db, userID)
	if err != nil {
		return "", err
	}
	return us.Plan, nil
}

func (s *gormStore) GetAvatar(id uint) (*models.Avatar, error) {
	var avatar models.Avatar
	if err := s.db.First(&avatar, id).Error; err != nil {
		return nil, err
	}
	return &avatar, nil
}

func (s *gormStore) GetModelProfile(id uint) (*models.ModelProfile, error) {
	var profile models.ModelProfile
	if err := s.db.First(&profile, id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
