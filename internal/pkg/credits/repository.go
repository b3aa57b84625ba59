package credits

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/supuni9622/ModelSnap/app/models"
)

// Repository provides DB operations used by the ledger service. All balance
// mutations go through LockBalance + InsertEntry + SaveBalance inside one
// Transaction; the row lock serializes concurrent mutations per owner.
type Repository interface {
	Transaction(fn func(Repository) error) error
	LockBalance(userID uint) (*models.CreditBalance, error)
	GetBalance(userID uint) (*models.CreditBalance, error)
	FindEntry(reason, correlationID string) (*models.CreditLedgerEntry, error)
	InsertEntry(entry *models.CreditLedgerEntry) error
	SaveBalance(balance *models.CreditBalance) error
	ListEntriesByUser(userID uint, limit int) ([]models.CreditLedgerEntry, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// LockBalance loads the owner's cached balance row under FOR UPDATE, creating
// a zero row first if the owner has never held credits.
func (r *gormRepository) LockBalance(userID uint) (*models.CreditBalance, error) {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.CreditBalance{UserID: userID}).Error; err != nil {
		return nil, err
	}

	var balance models.CreditBalance
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *gormRepository) GetBalance(userID uint) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := r.db.Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CreditBalance{UserID: userID, Balance: 0}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *gormRepository) FindEntry(reason, correlationID string) (*models.CreditLedgerEntry, error) {
	var entry models.CreditLedgerEntry
	err := r.db.Where("reason = ? AND correlation_id = ?", reason, correlationID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) InsertEntry(entry *models.CreditLedgerEntry) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) SaveBalance(balance *models.CreditBalance) error {
	return r.db.Model(&models.CreditBalance{}).
		Where("id = ?", balance.ID).
		Update("balance", balance.Balance).Error
}

func (r *gormRepository) ListEntriesByUser(userID uint, limit int) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	q := r.db.Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}
