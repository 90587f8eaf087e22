package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

// ObservationRepo reads the emotion-analysis feed. This subsystem never
// writes observations; the analysis pipeline owns them.
type ObservationRepo interface {
	GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.EmotionObservation, error)
	CountByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	UserIDsWithMinObservations(ctx context.Context, tx *gorm.DB, since time.Time, minCount int) ([]uuid.UUID, error)
}

type observationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObservationRepo(db *gorm.DB, baseLog *logger.Logger) ObservationRepo {
	return &observationRepo{db: db, log: baseLog.With("repo", "ObservationRepo")}
}

func (r *observationRepo) GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.EmotionObservation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.EmotionObservation
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND observed_at >= ?", userID, since).
		Order("observed_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *observationRepo) CountByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.EmotionObservation{}).
		Where("user_id = ? AND observed_at >= ?", userID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *observationRepo) UserIDsWithMinObservations(ctx context.Context, tx *gorm.DB, since time.Time, minCount int) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.EmotionObservation{}).
		Select("user_id").
		Where("observed_at >= ?", since).
		Group("user_id").
		Having("COUNT(*) >= ?", minCount).
		Find(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
