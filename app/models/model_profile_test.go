package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestModelProfileIsRenderable(t *testing.T) {
	granted := time.Now().Add(-24 * time.Hour)
	revoked := time.Now()

	tests := []struct {
		name    string
		profile ModelProfile
		want    bool
	}{
		{
			name:    "active with consent",
			profile: ModelProfile{IsActive: true, ConsentGrantedAt: &granted},
			want:    true,
		},
		{
			name:    "inactive",
			profile: ModelProfile{IsActive: false, ConsentGrantedAt: &granted},
			want:    false,
		},
		{
			name:    "consent never granted",
			profile: ModelProfile{IsActive: true},
			want:    false,
		},
		{
			name:    "consent withdrawn",
			profile: ModelProfile{IsActive: true, ConsentGrantedAt: &granted, ConsentRevokedAt: &revoked},
			want:    false,
		},
		{
			name:    "deleted",
			profile: ModelProfile{IsActive: true, ConsentGrantedAt: &granted, DeletedAt: gorm.DeletedAt{Time: time.Now(), Valid: true}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.IsRenderable())
		})
	}
}
