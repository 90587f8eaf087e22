package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

type MembershipRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, memberships []*types.CircleMembership) error
	GetActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.CircleMembership, error)
	CountActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error)
	// ActiveCountsByCircle maps circle id -> active member count for one group.
	ActiveCountsByCircle(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (map[uuid.UUID]int, error)
	CountRecentlyActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, since time.Time) (int64, error)
	SumMessageCountByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error)
	DeactivateByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, at time.Time) error
	DeactivateUserInGroup(ctx context.Context, tx *gorm.DB, userID, groupID uuid.UUID, at time.Time) error
}

type membershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMembershipRepo(db *gorm.DB, baseLog *logger.Logger) MembershipRepo {
	return &membershipRepo{db: db, log: baseLog.With("repo", "MembershipRepo")}
}

func (r *membershipRepo) CreateBatch(ctx context.Context, tx *gorm.DB, memberships []*types.CircleMembership) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(memberships) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&memberships).Error
}

func (r *membershipRepo) GetActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.CircleMembership, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CircleMembership
	if err := transaction.WithContext(ctx).
		Where("shared_wound_group_id = ? AND status = ?", groupID, types.MembershipStatusActive).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *membershipRepo) CountActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.CircleMembership{}).
		Where("shared_wound_group_id = ? AND status = ?", groupID, types.MembershipStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *membershipRepo) ActiveCountsByCircle(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (map[uuid.UUID]int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		CircleID uuid.UUID
		N        int
	}
	if err := transaction.WithContext(ctx).
		Model(&types.CircleMembership{}).
		Select("circle_id, COUNT(*) AS n").
		Where("shared_wound_group_id = ? AND status = ?", groupID, types.MembershipStatusActive).
		Group("circle_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.CircleID] = row.N
	}
	return out, nil
}

func (r *membershipRepo) CountRecentlyActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.CircleMembership{}).
		Where("shared_wound_group_id = ? AND status = ? AND last_active_at >= ?", groupID, types.MembershipStatusActive, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *membershipRepo) SumMessageCountByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var sum *int64
	if err := transaction.WithContext(ctx).
		Model(&types.CircleMembership{}).
		Select("SUM(message_count)").
		Where("shared_wound_group_id = ? AND status = ?", groupID, types.MembershipStatusActive).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (r *membershipRepo) DeactivateByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.CircleMembership{}).
		Where("shared_wound_group_id = ? AND status = ?", groupID, types.MembershipStatusActive).
		Updates(map[string]interface{}{
			"status":     types.MembershipStatusLeft,
			"left_at":    at,
			"updated_at": at,
		}).Error
}

func (r *membershipRepo) DeactivateUserInGroup(ctx context.Context, tx *gorm.DB, userID, groupID uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.CircleMembership{}).
		Where("user_id = ? AND shared_wound_group_id = ? AND status = ?", userID, groupID, types.MembershipStatusActive).
		Updates(map[string]interface{}{
			"status":     types.MembershipStatusLeft,
			"left_at":    at,
			"updated_at": at,
		}).Error
}
