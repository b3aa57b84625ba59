package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types emitted by the generation orchestrator and reconciler.
const (
	NotificationTypeGenerationDone   = "generation_completed"
	NotificationTypeGenerationFailed = "generation_failed"
	NotificationTypePlanChanged      = "plan_changed"
	NotificationTypeCreditsGranted   = "credits_granted"
)

type Notification struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	User        User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type        string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=generation_completed generation_failed plan_changed credits_granted"`
	Content     string         `gorm:"type:text" json:"content"`
	IsRead      bool           `gorm:"default:false" json:"is_read"`
	ReferenceID string         `gorm:"type:varchar(191);default:''" json:"reference_id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// CreateNotification persists a new notification row for a user.
func CreateNotification(db *gorm.DB, userID uint, notificationType string, content string, referenceID string) error {
	notification := Notification{
		UserID:      userID,
		Type:        notificationType,
		Content:     content,
		ReferenceID: referenceID,
		IsRead:      false,
	}

	return db.Create(&notification).Error
}
