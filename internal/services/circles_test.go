package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/types"
)

type fakeCircleRepo struct {
	circles []*types.Circle
}

func (f *fakeCircleRepo) Create(ctx context.Context, tx *gorm.DB, circle *types.Circle) error {
	f.circles = append(f.circles, circle)
	return nil
}

func (f *fakeCircleRepo) GetActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.Circle, error) {
	out := []*types.Circle{}
	for _, c := range f.circles {
		if c.SharedWoundGroupID == groupID && c.Status == types.CircleStatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCircleRepo) CountByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error) {
	var n int64
	for _, c := range f.circles {
		if c.SharedWoundGroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (f *fakeCircleRepo) CloseByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, at time.Time) error {
	for _, c := range f.circles {
		if c.SharedWoundGroupID == groupID {
			c.Status = types.CircleStatusClosed
		}
	}
	return nil
}

type fakeMembershipRepo struct {
	memberships []*types.CircleMembership
}

func (f *fakeMembershipRepo) CreateBatch(ctx context.Context, tx *gorm.DB, memberships []*types.CircleMembership) error {
	f.memberships = append(f.memberships, memberships...)
	return nil
}

func (f *fakeMembershipRepo) GetActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.CircleMembership, error) {
	out := []*types.CircleMembership{}
	for _, m := range f.memberships {
		if m.SharedWoundGroupID == groupID && m.Status == types.MembershipStatusActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMembershipRepo) CountActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error) {
	active, _ := f.GetActiveByGroup(ctx, tx, groupID)
	return int64(len(active)), nil
}

func (f *fakeMembershipRepo) ActiveCountsByCircle(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (map[uuid.UUID]int, error) {
	out := map[uuid.UUID]int{}
	for _, m := range f.memberships {
		if m.SharedWoundGroupID == groupID && m.Status == types.MembershipStatusActive {
			out[m.CircleID]++
		}
	}
	return out, nil
}

func (f *fakeMembershipRepo) CountRecentlyActiveByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	for _, m := range f.memberships {
		if m.SharedWoundGroupID == groupID && m.Status == types.MembershipStatusActive &&
			m.LastActiveAt != nil && !m.LastActiveAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMembershipRepo) SumMessageCountByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (int64, error) {
	var sum int64
	for _, m := range f.memberships {
		if m.SharedWoundGroupID == groupID && m.Status == types.MembershipStatusActive {
			sum += int64(m.MessageCount)
		}
	}
	return sum, nil
}

func (f *fakeMembershipRepo) DeactivateByGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, at time.Time) error {
	for _, m := range f.memberships {
		if m.SharedWoundGroupID == groupID && m.Status == types.MembershipStatusActive {
			m.Status = types.MembershipStatusLeft
			left := at
			m.LeftAt = &left
		}
	}
	return nil
}

func (f *fakeMembershipRepo) DeactivateUserInGroup(ctx context.Context, tx *gorm.DB, userID, groupID uuid.UUID, at time.Time) error {
	for _, m := range f.memberships {
		if m.UserID == userID && m.SharedWoundGroupID == groupID && m.Status == types.MembershipStatusActive {
			m.Status = types.MembershipStatusLeft
			left := at
			m.LeftAt = &left
		}
	}
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	return log
}

func newTestAllocator(t *testing.T) (CircleAllocator, *fakeCircleRepo, *fakeMembershipRepo) {
	t.Helper()
	circles := &fakeCircleRepo{}
	memberships := &fakeMembershipRepo{}
	allocator := NewCircleAllocator(testLogger(t), config.DefaultBatch(), circles, memberships)
	return allocator, circles, memberships
}

func TestAssignMembersDistributesAcrossCircles(t *testing.T) {
	allocator, circles, memberships := newTestAllocator(t)
	group := &types.SharedWoundGroup{ID: uuid.New(), Name: "Grief Support"}

	userIDs := make([]uuid.UUID, 20)
	for i := range userIDs {
		userIDs[i] = uuid.New()
	}
	created, err := allocator.AssignMembers(context.Background(), nil, group, userIDs)
	if err != nil {
		t.Fatalf("AssignMembers: %v", err)
	}

	// 20 members at capacity 8 need three circles.
	if created != 3 {
		t.Fatalf("created %d circles, want 3", created)
	}
	if len(memberships.memberships) != 20 {
		t.Fatalf("recorded %d memberships, want 20", len(memberships.memberships))
	}
	counts, _ := memberships.ActiveCountsByCircle(context.Background(), nil, group.ID)
	for _, c := range circles.circles {
		if counts[c.ID] > c.MaxMembers {
			t.Fatalf("circle %s holds %d members, capacity %d", c.Name, counts[c.ID], c.MaxMembers)
		}
	}
}

func TestAssignMembersReusesOpenCircles(t *testing.T) {
	allocator, circles, _ := newTestAllocator(t)
	group := &types.SharedWoundGroup{ID: uuid.New(), Name: "Grief Support"}

	if _, err := allocator.AssignMembers(context.Background(), nil, group, []uuid.UUID{uuid.New(), uuid.New()}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	created, err := allocator.AssignMembers(context.Background(), nil, group, []uuid.UUID{uuid.New()})
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if created != 0 {
		t.Fatalf("second assign created %d circles, want 0", created)
	}
	if len(circles.circles) != 1 {
		t.Fatalf("have %d circles, want 1", len(circles.circles))
	}
}

func TestEnsureCapacityIsIdempotent(t *testing.T) {
	allocator, circles, _ := newTestAllocator(t)
	group := &types.SharedWoundGroup{ID: uuid.New(), Name: "Grief Support"}

	// 20 members at target size 7 need two circles.
	created, err := allocator.EnsureCapacity(context.Background(), nil, group, 20)
	if err != nil {
		t.Fatalf("EnsureCapacity: %v", err)
	}
	if created != 2 {
		t.Fatalf("created %d circles, want 2", created)
	}
	created, err = allocator.EnsureCapacity(context.Background(), nil, group, 20)
	if err != nil {
		t.Fatalf("EnsureCapacity repeat: %v", err)
	}
	if created != 0 {
		t.Fatalf("repeat created %d circles, want 0", created)
	}
	if len(circles.circles) != 2 {
		t.Fatalf("have %d circles, want 2", len(circles.circles))
	}
}

func TestPickLeastFullSkipsFullCircles(t *testing.T) {
	a := &types.Circle{ID: uuid.New(), MaxMembers: 8}
	b := &types.Circle{ID: uuid.New(), MaxMembers: 8}
	counts := map[uuid.UUID]int{a.ID: 8, b.ID: 3}

	got := pickLeastFull([]*types.Circle{a, b}, counts)
	if got != b {
		t.Fatal("should pick the circle with headroom")
	}

	counts[b.ID] = 8
	if got := pickLeastFull([]*types.Circle{a, b}, counts); got != nil {
		t.Fatal("every circle full, want nil")
	}
}
