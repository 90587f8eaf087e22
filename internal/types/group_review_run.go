package types

import (
	"time"

	"github.com/google/uuid"
)

// GroupReviewRun records one full batch invocation, both for scheduling
// visibility and so collaborators can read the last run's counters.
type GroupReviewRun struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	TriggeredBy string    `gorm:"column:triggered_by" json:"triggered_by"`

	ProfilesRefreshed int `gorm:"not null;default:0" json:"profiles_refreshed"`
	GroupsCreated     int `gorm:"not null;default:0" json:"groups_created"`
	GroupsUpdated     int `gorm:"not null;default:0" json:"groups_updated"`
	GroupsMerged      int `gorm:"not null;default:0" json:"groups_merged"`
	GroupsSplit       int `gorm:"not null;default:0" json:"groups_split"`
	GroupsArchived    int `gorm:"not null;default:0" json:"groups_archived"`
	CirclesCreated    int `gorm:"not null;default:0" json:"circles_created"`
	UsersReassigned   int `gorm:"not null;default:0" json:"users_reassigned"`
	Failures          int `gorm:"not null;default:0" json:"failures"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (GroupReviewRun) TableName() string { return "group_review_run" }
