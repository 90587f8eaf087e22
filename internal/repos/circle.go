package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

type CircleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, circle *types.Circle) error
	GetActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.Circle, error)
	CountByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error)
	// CloseByGroup marks every non-closed circle under a group closed; used
	// when the owning group is archived.
	CloseByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, at time.Time) error
}

type circleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCircleRepo(db *gorm.DB, baseLog *logger.Logger) CircleRepo {
	return &circleRepo{db: db, log: baseLog.With("repo", "CircleRepo")}
}

func (r *circleRepo) Create(ctx context.Context, tx *gorm.DB, circle *types.Circle) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(circle).Error
}

func (r *circleRepo) GetActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.Circle, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Circle
	if err := transaction.WithContext(ctx).
		Where("shared_wound_group_id = ? AND status = ?", groupID, types.CircleStatusActive).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *circleRepo) CountByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Circle{}).
		Where("shared_wound_group_id = ?", groupID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *circleRepo) CloseByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Circle{}).
		Where("shared_wound_group_id = ? AND status <> ?", groupID, types.CircleStatusClosed).
		Updates(map[string]interface{}{
			"status":     types.CircleStatusClosed,
			"updated_at": at,
		}).Error
}
