package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

type GroupRepo interface {
	Create(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup) error
	Save(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SharedWoundGroup, error)
	GetByClusterID(ctx context.Context, tx *gorm.DB, clusterID string) (*types.SharedWoundGroup, error)
	GetActive(ctx context.Context, tx *gorm.DB) ([]*types.SharedWoundGroup, error)
	// GetDueForReview returns active AI-managed groups whose next_ai_review
	// has elapsed.
	GetDueForReview(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.SharedWoundGroup, error)
	// IncrementMemberCount applies a relative member_count change in SQL, so
	// concurrent writers never overwrite each other's counts.
	IncrementMemberCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{db: db, log: baseLog.With("repo", "GroupRepo")}
}

func (r *groupRepo) Create(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(group).Error
}

func (r *groupRepo) Save(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(group).Error
}

func (r *groupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SharedWoundGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.SharedWoundGroup
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *groupRepo) GetByClusterID(ctx context.Context, tx *gorm.DB, clusterID string) (*types.SharedWoundGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.SharedWoundGroup
	err := transaction.WithContext(ctx).
		Where("cluster_id = ?", clusterID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *groupRepo) GetActive(ctx context.Context, tx *gorm.DB) ([]*types.SharedWoundGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SharedWoundGroup
	if err := transaction.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *groupRepo) IncrementMemberCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.SharedWoundGroup{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"member_count": gorm.Expr("member_count + ?", delta),
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *groupRepo) GetDueForReview(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.SharedWoundGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SharedWoundGroup
	if err := transaction.WithContext(ctx).
		Where("is_active = ? AND ai_managed = ? AND (next_ai_review IS NULL OR next_ai_review <= ?)", true, true, now).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
