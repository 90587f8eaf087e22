package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

// LifeEventRepo reads intake life events; the categories and tags feed the
// trauma-theme set of a cluster profile.
type LifeEventRepo interface {
	GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LifeEvent, error)
}

type lifeEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLifeEventRepo(db *gorm.DB, baseLog *logger.Logger) LifeEventRepo {
	return &lifeEventRepo{db: db, log: baseLog.With("repo", "LifeEventRepo")}
}

func (r *lifeEventRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LifeEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.LifeEvent
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
