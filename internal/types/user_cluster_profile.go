package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserClusterProfile is the per-user clustering summary. At most one live row
// per user; rows are refreshed in place, never deleted.
type UserClusterProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`

	DominantEmotions   datatypes.JSON `gorm:"type:jsonb;column:dominant_emotions" json:"dominant_emotions"`
	EmotionIntensity   float64        `gorm:"not null;default:0" json:"emotion_intensity"`
	EmotionVariability float64        `gorm:"not null;default:0" json:"emotion_variability"`
	TraumaThemes       datatypes.JSON `gorm:"type:jsonb;column:trauma_themes" json:"trauma_themes"`
	HealingStage       string         `gorm:"not null;default:'early'" json:"healing_stage"`

	CopingPatterns     datatypes.JSON `gorm:"type:jsonb;column:coping_patterns" json:"coping_patterns"`
	CommunicationStyle string         `gorm:"column:communication_style" json:"communication_style"`
	SupportPreference  string         `gorm:"column:support_preference" json:"support_preference"`
	ActivityLevel      string         `gorm:"column:activity_level" json:"activity_level"`

	ClusterVector     datatypes.JSON `gorm:"type:jsonb;column:cluster_vector" json:"cluster_vector"`
	ClusterConfidence float64        `gorm:"not null;default:0" json:"cluster_confidence"`
	LastClusteredAt   *time.Time     `gorm:"column:last_clustered_at" json:"last_clustered_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserClusterProfile) TableName() string { return "user_cluster_profile" }

// Vector decodes the persisted cluster vector. Returns false when the column
// is empty or malformed.
func (p *UserClusterProfile) Vector() ([]float64, bool) {
	if len(p.ClusterVector) == 0 {
		return nil, false
	}
	var out []float64
	if err := json.Unmarshal(p.ClusterVector, &out); err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Emotions decodes the dominant-emotion map; nil when unset.
func (p *UserClusterProfile) Emotions() map[string]float64 {
	if len(p.DominantEmotions) == 0 {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal(p.DominantEmotions, &out); err != nil {
		return nil
	}
	return out
}

// Themes decodes the trauma-theme set; nil when unset.
func (p *UserClusterProfile) Themes() []string {
	if len(p.TraumaThemes) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.TraumaThemes, &out); err != nil {
		return nil
	}
	return out
}
