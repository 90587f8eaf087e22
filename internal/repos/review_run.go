package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

type ReviewRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.GroupReviewRun) error
	GetLatest(ctx context.Context, tx *gorm.DB) (*types.GroupReviewRun, error)
}

type reviewRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRunRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRunRepo {
	return &reviewRunRepo{db: db, log: baseLog.With("repo", "ReviewRunRepo")}
}

func (r *reviewRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.GroupReviewRun) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(run).Error
}

func (r *reviewRunRepo) GetLatest(ctx context.Context, tx *gorm.DB) (*types.GroupReviewRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.GroupReviewRun
	err := transaction.WithContext(ctx).
		Order("started_at DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
