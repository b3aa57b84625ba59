package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
)

// generationRepository implements the GenerationRepository interface
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation repository instance
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

// ListByUserID retrieves a paginated list of a user's generation requests
func (r *generationRepository) ListByUserID(userID uint, offset, limit int) ([]models.GenerationRequest, error) {
	var reqs []models.GenerationRequest
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

// CountByUserID returns the number of generation requests for a user
func (r *generationRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationRequest{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of generation requests in a given status
func (r *generationRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationRequest{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// GetDailyCounts returns per-day request counts for a date range
func (r *generationRepository) GetDailyCounts(startDate, endDate time.Time) (map[string]int64, error) {
	var results []struct {
		Date  string `json:"date"`
		Count int64  `json:"count"`
	}

	// Use DATE_FORMAT for MySQL compatibility and proper date formatting
	err := r.db.Model(&models.GenerationRequest{}).
		Select("DATE_FORMAT(created_at, '%Y-%m-%d') as date, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("DATE_FORMAT(created_at, '%Y-%m-%d')").
		Order("date").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get daily generation stats: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, result := range results {
		counts[result.Date] = result.Count
	}
	return counts, nil
}
