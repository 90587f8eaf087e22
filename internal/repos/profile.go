package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

type ProfileRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserClusterProfile, error)
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserClusterProfile, error)
	Upsert(ctx context.Context, tx *gorm.DB, profile *types.UserClusterProfile) error
	// GetUnassigned returns profiles of users with no active circle
	// membership; only these are eligible for clustering.
	GetUnassigned(ctx context.Context, tx *gorm.DB) ([]*types.UserClusterProfile, error)
	MarkClustered(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, at time.Time) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *profileRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserClusterProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.UserClusterProfile
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *profileRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserClusterProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.UserClusterProfile
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *profileRepo) Upsert(ctx context.Context, tx *gorm.DB, profile *types.UserClusterProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"dominant_emotions", "emotion_intensity", "emotion_variability",
				"trauma_themes", "healing_stage", "coping_patterns",
				"communication_style", "support_preference", "activity_level",
				"cluster_vector", "cluster_confidence", "updated_at",
			}),
		}).
		Create(profile).Error
}

func (r *profileRepo) GetUnassigned(ctx context.Context, tx *gorm.DB) ([]*types.UserClusterProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.UserClusterProfile
	sub := transaction.Session(&gorm.Session{NewDB: true}).
		Model(&types.CircleMembership{}).
		Select("user_id").
		Where("status = ?", types.MembershipStatusActive)
	if err := transaction.WithContext(ctx).
		Where("user_id NOT IN (?)", sub).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *profileRepo) MarkClustered(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(userIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.UserClusterProfile{}).
		Where("user_id IN ?", userIDs).
		Updates(map[string]interface{}{
			"last_clustered_at": at,
			"updated_at":        at,
		}).Error
}
