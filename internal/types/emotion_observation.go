package types

import (
	"time"

	"github.com/google/uuid"
)

// EmotionObservation is one emotion-analysis result for one user, written by
// the analysis pipeline and read here as the raw material for cluster
// profiles. Each observation carries the six channel intensities.
type EmotionObservation struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_emotion_observation_user_time" json:"user_id"`
	User     *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Sadness  float64   `gorm:"not null;default:0" json:"sadness"`
	Anger    float64   `gorm:"not null;default:0" json:"anger"`
	Fear     float64   `gorm:"not null;default:0" json:"fear"`
	Joy      float64   `gorm:"not null;default:0" json:"joy"`
	Surprise float64   `gorm:"not null;default:0" json:"surprise"`
	Disgust  float64   `gorm:"not null;default:0" json:"disgust"`
	Source   string    `gorm:"column:source" json:"source"`

	ObservedAt time.Time `gorm:"not null;index:idx_emotion_observation_user_time" json:"observed_at"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EmotionObservation) TableName() string { return "emotion_observation" }

// Intensities returns the six channel values in EmotionChannels order.
func (o *EmotionObservation) Intensities() []float64 {
	return []float64{o.Sadness, o.Anger, o.Fear, o.Joy, o.Surprise, o.Disgust}
}

// MaxIntensity is the strongest channel of this observation.
func (o *EmotionObservation) MaxIntensity() float64 {
	max := o.Sadness
	for _, v := range o.Intensities()[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
