package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestAvatarIsRenderable(t *testing.T) {
	tests := []struct {
		name   string
		avatar Avatar
		want   bool
	}{
		{name: "ready", avatar: Avatar{Status: AvatarStatusReady}, want: true},
		{name: "pending", avatar: Avatar{Status: AvatarStatusPending}, want: false},
		{name: "failed", avatar: Avatar{Status: AvatarStatusFailed}, want: false},
		{
			name:   "ready but deleted",
			avatar: Avatar{Status: AvatarStatusReady, DeletedAt: gorm.DeletedAt{Time: time.Now(), Valid: true}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.avatar.IsRenderable())
		})
	}
}
