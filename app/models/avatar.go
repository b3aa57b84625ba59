package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	AvatarStatusPending = "pending"
	AvatarStatusReady   = "ready"
	AvatarStatusFailed  = "failed"
)

// Avatar is a user-owned AI avatar that garments can be rendered onto.
// Only avatars in status ready are eligible render subjects.
type Avatar struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      string         `gorm:"type:char(36);not null;uniqueIndex" json:"uuid"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Name      string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	ImageURL  string         `gorm:"type:varchar(2048);not null" json:"image_url"`
	Status    string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsRenderable reports whether the avatar can be used as a render subject.
func (a *Avatar) IsRenderable() bool {
	return a.Status == AvatarStatusReady && !a.DeletedAt.Valid
}
