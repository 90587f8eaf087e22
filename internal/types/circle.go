package types

import (
	"time"

	"github.com/google/uuid"
)

// Circle is a capacity-bounded conversational sub-unit of a group. Circles
// are created and closed by the allocator, never by users.
type Circle struct {
	ID                 uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SharedWoundGroupID uuid.UUID         `gorm:"type:uuid;not null;index" json:"shared_wound_group_id"`
	SharedWoundGroup   *SharedWoundGroup `gorm:"constraint:OnDelete:CASCADE;foreignKey:SharedWoundGroupID;references:ID" json:"shared_wound_group,omitempty"`

	Name               string `gorm:"not null" json:"name"`
	MaxMembers         int    `gorm:"not null;default:8" json:"max_members"`
	Status             string `gorm:"not null;default:'active';index" json:"status"`
	IsPrivate          bool   `gorm:"not null;default:true" json:"is_private"`
	RequiresInvitation bool   `gorm:"not null;default:false" json:"requires_invitation"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Circle) TableName() string { return "circle" }
