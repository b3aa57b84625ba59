package models

import (
	"time"

	"gorm.io/gorm"
)

// ModelProfile is a licensed human model that users can render garments onto.
// The marketplace consent workflow lives outside this core; here consent is a
// precondition gate: a profile is only an eligible subject while it is active
// and consent has been granted and not withdrawn.
type ModelProfile struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UUID             string         `gorm:"type:char(36);not null;uniqueIndex" json:"uuid"`
	DisplayName      string         `gorm:"type:varchar(150);not null" json:"display_name" validate:"required,max=150"`
	ImageURL         string         `gorm:"type:varchar(2048);not null" json:"image_url"`
	IsActive         bool           `gorm:"default:true;index" json:"is_active"`
	ConsentGrantedAt *time.Time     `gorm:"type:timestamp;default:null" json:"consent_granted_at,omitempty"`
	ConsentRevokedAt *time.Time     `gorm:"type:timestamp;default:null" json:"consent_revoked_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsRenderable reports whether the profile can be used as a render subject.
func (m *ModelProfile) IsRenderable() bool {
	if !m.IsActive || m.DeletedAt.Valid {
		return false
	}
	if m.ConsentGrantedAt == nil {
		return false
	}
	return m.ConsentRevokedAt == nil
}
