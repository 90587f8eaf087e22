package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/repos"
	"github.com/solacegrove/solace-backend/internal/types"
)

// CircleAllocator subdivides a group's membership into bounded chat circles.
// Circles are private and algorithmically managed; users never invite into
// them.
type CircleAllocator interface {
	// EnsureCapacity creates circles until the group can seat memberCount
	// users at the configured target size. Idempotent.
	EnsureCapacity(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, memberCount int) (created int, err error)
	// AssignMembers places users into the least-full open circles of the
	// group, creating circles as needed, and records memberships.
	AssignMembers(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, userIDs []uuid.UUID) (created int, err error)
}

type circleAllocator struct {
	log         *logger.Logger
	cfg         config.Batch
	circles     repos.CircleRepo
	memberships repos.MembershipRepo
}

func NewCircleAllocator(
	baseLog *logger.Logger,
	cfg config.Batch,
	circles repos.CircleRepo,
	memberships repos.MembershipRepo,
) CircleAllocator {
	return &circleAllocator{
		log:         baseLog.With("service", "CircleAllocator"),
		cfg:         cfg,
		circles:     circles,
		memberships: memberships,
	}
}

func (a *circleAllocator) EnsureCapacity(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, memberCount int) (int, error) {
	needed := memberCount / a.cfg.CircleTargetSize
	if needed < 1 {
		needed = 1
	}
	existing, err := a.circles.GetActiveByGroup(ctx, tx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("load circles: %w", err)
	}
	if len(existing) >= needed {
		return 0, nil
	}

	total, err := a.circles.CountByGroup(ctx, tx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("count circles: %w", err)
	}

	created := 0
	for i := len(existing); i < needed; i++ {
		circle := a.newCircle(group, int(total)+created+1)
		if err := a.circles.Create(ctx, tx, circle); err != nil {
			return created, fmt.Errorf("create circle: %w", err)
		}
		created++
	}
	if created > 0 {
		a.log.Info("Created circles for group", "group_id", group.ID, "created", created, "member_count", memberCount)
	}
	return created, nil
}

func (a *circleAllocator) AssignMembers(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, userIDs []uuid.UUID) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	circles, err := a.circles.GetActiveByGroup(ctx, tx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("load circles: %w", err)
	}
	counts, err := a.memberships.ActiveCountsByCircle(ctx, tx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("load circle counts: %w", err)
	}
	total, err := a.circles.CountByGroup(ctx, tx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("count circles: %w", err)
	}

	created := 0
	memberships := make([]*types.CircleMembership, 0, len(userIDs))
	for _, userID := range userIDs {
		target := pickLeastFull(circles, counts)
		if target == nil {
			circle := a.newCircle(group, int(total)+created+1)
			if err := a.circles.Create(ctx, tx, circle); err != nil {
				return created, fmt.Errorf("create circle: %w", err)
			}
			created++
			circles = append(circles, circle)
			target = circle
		}
		counts[target.ID]++
		memberships = append(memberships, &types.CircleMembership{
			ID:                 uuid.New(),
			CircleID:           target.ID,
			SharedWoundGroupID: group.ID,
			UserID:             userID,
			Status:             types.MembershipStatusActive,
		})
	}

	if err := a.memberships.CreateBatch(ctx, tx, memberships); err != nil {
		return created, fmt.Errorf("create memberships: %w", err)
	}
	return created, nil
}

func (a *circleAllocator) newCircle(group *types.SharedWoundGroup, index int) *types.Circle {
	return &types.Circle{
		ID:                 uuid.New(),
		SharedWoundGroupID: group.ID,
		Name:               fmt.Sprintf("%s Circle %d", group.Name, index),
		MaxMembers:         a.cfg.CircleCapacity,
		Status:             types.CircleStatusActive,
		IsPrivate:          true,
		RequiresInvitation: false,
	}
}

// pickLeastFull returns the open circle with the fewest active members, or
// nil when every circle is at capacity.
func pickLeastFull(circles []*types.Circle, counts map[uuid.UUID]int) *types.Circle {
	var best *types.Circle
	bestCount := 0
	for _, c := range circles {
		n := counts[c.ID]
		if n >= c.MaxMembers {
			continue
		}
		if best == nil || n < bestCount {
			best = c
			bestCount = n
		}
	}
	return best
}
