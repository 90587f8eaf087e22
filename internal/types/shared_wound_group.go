package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SharedWoundGroup is a cohort of users with similar emotional histories.
// ClusterID is a content hash of the group's defining characteristics so that
// re-running creation against an unchanged population is idempotent.
type SharedWoundGroup struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ClusterID string    `gorm:"not null;uniqueIndex;column:cluster_id" json:"cluster_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"column:description" json:"description"`

	EmotionalPattern datatypes.JSON `gorm:"type:jsonb;column:emotional_pattern" json:"emotional_pattern"`
	TraumaThemes     datatypes.JSON `gorm:"type:jsonb;column:trauma_themes" json:"trauma_themes"`
	HealingStage     string         `gorm:"not null;default:'early'" json:"healing_stage"`

	MemberCount     int     `gorm:"not null;default:0" json:"member_count"`
	MaxMembers      int     `gorm:"not null;default:50" json:"max_members"`
	ActivityScore   float64 `gorm:"not null;default:0" json:"activity_score"`
	CohesionScore   float64 `gorm:"not null;default:0" json:"cohesion_score"`
	GrowthPotential float64 `gorm:"not null;default:0" json:"growth_potential"`
	ConfidenceScore float64 `gorm:"not null;default:0" json:"confidence_score"`

	IsActive         bool `gorm:"not null;default:true;index" json:"is_active"`
	RequiresApproval bool `gorm:"not null;default:false" json:"requires_approval"`
	AIManaged        bool `gorm:"not null;default:true" json:"ai_managed"`

	LastAIReview *time.Time `gorm:"column:last_ai_review" json:"last_ai_review,omitempty"`
	NextAIReview *time.Time `gorm:"column:next_ai_review;index" json:"next_ai_review,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (SharedWoundGroup) TableName() string { return "shared_wound_group" }

// Pattern decodes the averaged top-emotion map; nil when unset.
func (g *SharedWoundGroup) Pattern() map[string]float64 {
	if len(g.EmotionalPattern) == 0 {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal(g.EmotionalPattern, &out); err != nil {
		return nil
	}
	return out
}

// Themes decodes the group theme set; nil when unset.
func (g *SharedWoundGroup) Themes() []string {
	if len(g.TraumaThemes) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(g.TraumaThemes, &out); err != nil {
		return nil
	}
	return out
}
