package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
)

// UserRepository defines read-side access to accounts. Account creation and
// profile edits happen outside this core, so only lookups and counts exist.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Count() (int64, error)
}

// GenerationRepository defines read-side access to generation requests for
// listings and admin views. Writes go through the orchestrator's store so
// status transitions stay guarded.
type GenerationRepository interface {
	ListByUserID(userID uint, offset, limit int) ([]models.GenerationRequest, error)
	CountByUserID(userID uint) (int64, error)
	CountByStatus(status string) (int64, error)
	GetDailyCounts(startDate, endDate time.Time) (map[string]int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	Generation GenerationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Generation: NewGenerationRepository(db),
	}
}
