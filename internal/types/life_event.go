package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LifeEvent is written by the intake/journaling subsystem. The grouping
// engine reads only the category and explicit tags as trauma-theme sources.
type LifeEvent struct {
	ID       uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Category string         `gorm:"not null;column:category" json:"category"`
	Tags     datatypes.JSON `gorm:"type:jsonb;column:tags" json:"tags"`

	OccurredAt time.Time `gorm:"column:occurred_at" json:"occurred_at"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (LifeEvent) TableName() string { return "life_event" }
