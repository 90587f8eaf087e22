package types

import (
	"time"

	"github.com/google/uuid"
)

// CircleMembership assigns a user to one circle. A user with an active
// membership anywhere under a group counts as assigned and is excluded from
// re-clustering. LastActiveAt and MessageCount are maintained by the chat
// subsystem and read here for activity scoring.
type CircleMembership struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CircleID           uuid.UUID `gorm:"type:uuid;not null;index" json:"circle_id"`
	Circle             *Circle   `gorm:"constraint:OnDelete:CASCADE;foreignKey:CircleID;references:ID" json:"circle,omitempty"`
	SharedWoundGroupID uuid.UUID `gorm:"type:uuid;not null;index" json:"shared_wound_group_id"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;index:idx_circle_membership_user_status" json:"user_id"`
	User               *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	Status       string     `gorm:"not null;default:'active';index:idx_circle_membership_user_status" json:"status"`
	JoinedAt     time.Time  `gorm:"not null;default:now()" json:"joined_at"`
	LeftAt       *time.Time `gorm:"column:left_at" json:"left_at,omitempty"`
	LastActiveAt *time.Time `gorm:"column:last_active_at" json:"last_active_at,omitempty"`
	MessageCount int        `gorm:"not null;default:0" json:"message_count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CircleMembership) TableName() string { return "circle_membership" }
