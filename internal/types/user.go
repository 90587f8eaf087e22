package types

import (
	"time"

	"github.com/google/uuid"
)

// User is owned by the account subsystem; only the columns this subsystem
// reads are mapped here.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "user" }
