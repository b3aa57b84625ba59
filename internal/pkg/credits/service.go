package credits

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
)

// ErrInsufficientBalance is returned when a deduction would drive the cached
// balance below zero. The deduction is rejected with no partial effect.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// ErrInvalidAmount is returned for non-positive amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Service is the only component permitted to mutate a credit balance.
// Balances and deltas are integers in the smallest accounted unit.
type Service struct {
	repo Repository
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ReserveAndDeduct atomically checks and deducts amount from the owner's
// balance, recording a render_deduction entry correlated to the generation
// request. Fails with ErrInsufficientBalance and no partial effect when the
// balance does not cover the amount.
func (s *Service) ReserveAndDeduct(ctx context.Context, userID uint, amount int64, correlationID string) (int64, error) {
	_ = ctx
	var newBalance int64
	err := s.repo.Transaction(func(r Repository) error {
		var txErr error
		newBalance, txErr = ApplyDeduction(r, userID, amount, correlationID)
		return txErr
	})
	return newBalance, err
}

// Refund returns amount to the owner, correlated to the generation request
// that was deducted. Idempotent per correlation id: a second refund for the
// same request is a no-op success.
func (s *Service) Refund(ctx context.Context, userID uint, amount int64, correlationID string) (bool, error) {
	_ = ctx
	applied := false
	err := s.repo.Transaction(func(r Repository) error {
		var txErr error
		applied, txErr = ApplyCredit(r, userID, amount, correlationID, models.LedgerReasonRenderRefund)
		return txErr
	})
	return applied, err
}

// Credit grants amount to the owner for the given reason (purchase_credit,
// plan_grant, admin_adjustment), idempotent per (reason, correlation id).
func (s *Service) Credit(ctx context.Context, userID uint, amount int64, correlationID, reason string) (bool, error) {
	_ = ctx
	applied := false
	err := s.repo.Transaction(func(r Repository) error {
		var txErr error
		applied, txErr = ApplyCredit(r, userID, amount, correlationID, reason)
		return txErr
	})
	return applied, err
}

// Balance returns the cached balance for an owner, zero if none exists yet.
func (s *Service) Balance(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	balance, err := s.repo.GetBalance(userID)
	if err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

// History lists the most recent ledger entries for an owner.
func (s *Service) History(ctx context.Context, userID uint, limit int) ([]models.CreditLedgerEntry, error) {
	_ = ctx
	return s.repo.ListEntriesByUser(userID, limit)
}

// ApplyDeduction performs the deduction inside an already-open transaction
// repository. Callers that need the deduction atomic with their own state
// change (the orchestrator's request creation) compose it this way.
func ApplyDeduction(r Repository, userID uint, amount int64, correlationID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := r.FindEntry(models.LedgerReasonRenderDeduction, correlationID); err == nil {
		return 0, fmt.Errorf("deduction already recorded for correlation %s", correlationID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	balance, err := r.LockBalance(userID)
	if err != nil {
		return 0, err
	}
	if balance.Balance < amount {
		return 0, ErrInsufficientBalance
	}

	balance.Balance -= amount
	entry := &models.CreditLedgerEntry{
		UserID:           userID,
		Delta:            -amount,
		ResultingBalance: balance.Balance,
		Reason:           models.LedgerReasonRenderDeduction,
		CorrelationID:    correlationID,
	}
	if err := r.InsertEntry(entry); err != nil {
		return 0, err
	}
	if err := r.SaveBalance(balance); err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

// ApplyCredit performs an idempotent credit inside an already-open transaction
// repository. Returns false when an entry for (reason, correlationID) already
// exists, so redelivered webhooks and repeated refunds never double-credit.
func ApplyCredit(r Repository, userID uint, amount int64, correlationID, reason string) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	if _, err := r.FindEntry(reason, correlationID); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	balance, err := r.LockBalance(userID)
	if err != nil {
		return false, err
	}

	balance.Balance += amount
	entry := &models.CreditLedgerEntry{
		UserID:           userID,
		Delta:            amount,
		ResultingBalance: balance.Balance,
		Reason:           reason,
		CorrelationID:    correlationID,
	}
	if err := r.InsertEntry(entry); err != nil {
		return false, err
	}
	if err := r.SaveBalance(balance); err != nil {
		return false, err
	}
	return true, nil
}
