package repos

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/testdb"
	"github.com/solacegrove/solace-backend/internal/types"
)

func testSetup(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	db := testdb.Open(t)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	return db, log
}

func seedUser(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	user := &types.User{ID: uuid.New(), DisplayName: "test user"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func jsonOf(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}

func TestObservationRepoWindowAndThreshold(t *testing.T) {
	db, log := testSetup(t)
	repo := NewObservationRepo(db, log)
	ctx := context.Background()

	userID := seedUser(t, db)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		obs := &types.EmotionObservation{
			ID:         uuid.New(),
			UserID:     userID,
			Sadness:    0.5,
			ObservedAt: now.Add(-time.Duration(i) * time.Hour),
		}
		if err := db.Create(obs).Error; err != nil {
			t.Fatalf("seed observation: %v", err)
		}
	}
	// One stale observation outside any reasonable window.
	old := &types.EmotionObservation{
		ID:         uuid.New(),
		UserID:     userID,
		Sadness:    0.9,
		ObservedAt: now.Add(-90 * 24 * time.Hour),
	}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed old observation: %v", err)
	}

	since := now.Add(-30 * 24 * time.Hour)
	got, err := repo.GetByUserSince(ctx, nil, userID, since)
	if err != nil {
		t.Fatalf("GetByUserSince: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d observations, want 5 inside the window", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ObservedAt.Before(got[i-1].ObservedAt) {
			t.Fatal("observations not in chronological order")
		}
	}

	ids, err := repo.UserIDsWithMinObservations(ctx, nil, since, 5)
	if err != nil {
		t.Fatalf("UserIDsWithMinObservations: %v", err)
	}
	if len(ids) != 1 || ids[0] != userID {
		t.Fatalf("ids = %v, want [%s]", ids, userID)
	}
	ids, err = repo.UserIDsWithMinObservations(ctx, nil, since, 6)
	if err != nil {
		t.Fatalf("UserIDsWithMinObservations: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids = %v, want none above a 6-observation bar", ids)
	}
}

func TestProfileRepoUpsertReplacesInPlace(t *testing.T) {
	db, log := testSetup(t)
	repo := NewProfileRepo(db, log)
	ctx := context.Background()

	userID := seedUser(t, db)
	first := &types.UserClusterProfile{
		ID:           uuid.New(),
		UserID:       userID,
		HealingStage: types.StageEarly,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, nil, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &types.UserClusterProfile{
		ID:           uuid.New(),
		UserID:       userID,
		HealingStage: types.StageGrowth,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, nil, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	if err := db.Model(&types.UserClusterProfile{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	if count != 1 {
		t.Fatalf("have %d profile rows for one user, want 1", count)
	}
	got, err := repo.GetByUserID(ctx, nil, userID)
	if err != nil || got == nil {
		t.Fatalf("GetByUserID: profile=%v err=%v", got, err)
	}
	if got.HealingStage != types.StageGrowth {
		t.Fatalf("stage = %q, want the upserted value", got.HealingStage)
	}
}

func TestProfileRepoGetUnassignedExcludesActiveMembers(t *testing.T) {
	db, log := testSetup(t)
	profiles := NewProfileRepo(db, log)
	ctx := context.Background()

	assignedUser := seedUser(t, db)
	freeUser := seedUser(t, db)
	leftUser := seedUser(t, db)

	for _, id := range []uuid.UUID{assignedUser, freeUser, leftUser} {
		p := &types.UserClusterProfile{ID: uuid.New(), UserID: id, HealingStage: types.StageEarly, UpdatedAt: time.Now().UTC()}
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}

	group := &types.SharedWoundGroup{ID: uuid.New(), ClusterID: "test-unassigned", Name: "G", HealingStage: types.StageEarly, MaxMembers: 50, IsActive: true, AIManaged: true}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	circle := &types.Circle{ID: uuid.New(), SharedWoundGroupID: group.ID, Name: "G Circle 1", MaxMembers: 8, Status: types.CircleStatusActive}
	if err := db.Create(circle).Error; err != nil {
		t.Fatalf("seed circle: %v", err)
	}
	now := time.Now().UTC()
	active := &types.CircleMembership{ID: uuid.New(), CircleID: circle.ID, SharedWoundGroupID: group.ID, UserID: assignedUser, Status: types.MembershipStatusActive, JoinedAt: now}
	left := &types.CircleMembership{ID: uuid.New(), CircleID: circle.ID, SharedWoundGroupID: group.ID, UserID: leftUser, Status: types.MembershipStatusLeft, JoinedAt: now, LeftAt: &now}
	if err := db.Create(active).Error; err != nil {
		t.Fatalf("seed active membership: %v", err)
	}
	if err := db.Create(left).Error; err != nil {
		t.Fatalf("seed left membership: %v", err)
	}

	got, err := profiles.GetUnassigned(ctx, nil)
	if err != nil {
		t.Fatalf("GetUnassigned: %v", err)
	}
	found := map[uuid.UUID]bool{}
	for _, p := range got {
		found[p.UserID] = true
	}
	if found[assignedUser] {
		t.Fatal("actively assigned user must not be returned")
	}
	if !found[freeUser] {
		t.Fatal("never-assigned user should be returned")
	}
	if !found[leftUser] {
		t.Fatal("user whose membership ended should be returned")
	}
}

func TestGroupRepoDueForReview(t *testing.T) {
	db, log := testSetup(t)
	repo := NewGroupRepo(db, log)
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	mk := func(clusterID string, next *time.Time, active, managed bool) *types.SharedWoundGroup {
		g := &types.SharedWoundGroup{
			ID: uuid.New(), ClusterID: clusterID, Name: clusterID,
			HealingStage: types.StageEarly, MaxMembers: 50,
			IsActive: active, AIManaged: managed, NextAIReview: next,
		}
		if err := db.Create(g).Error; err != nil {
			t.Fatalf("seed group %s: %v", clusterID, err)
		}
		return g
	}
	due := mk("due", &past, true, true)
	neverReviewed := mk("never-reviewed", nil, true, true)
	mk("not-yet", &future, true, true)
	mk("archived", &past, false, true)
	mk("manual", &past, true, false)

	got, err := repo.GetDueForReview(ctx, nil, now)
	if err != nil {
		t.Fatalf("GetDueForReview: %v", err)
	}
	ids := map[uuid.UUID]bool{}
	for _, g := range got {
		ids[g.ID] = true
	}
	if len(got) != 2 || !ids[due.ID] || !ids[neverReviewed.ID] {
		t.Fatalf("due groups = %d, want exactly the elapsed and never-reviewed ones", len(got))
	}
}

func TestGroupRepoGetByClusterID(t *testing.T) {
	db, log := testSetup(t)
	repo := NewGroupRepo(db, log)
	ctx := context.Background()

	g := &types.SharedWoundGroup{
		ID: uuid.New(), ClusterID: "abc123", Name: "G",
		HealingStage: types.StageEarly, MaxMembers: 50, IsActive: true, AIManaged: true,
		TraumaThemes: jsonOf(t, []string{"grief"}),
	}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	got, err := repo.GetByClusterID(ctx, nil, "abc123")
	if err != nil || got == nil {
		t.Fatalf("GetByClusterID: group=%v err=%v", got, err)
	}
	if got.ID != g.ID {
		t.Fatalf("got group %s, want %s", got.ID, g.ID)
	}

	missing, err := repo.GetByClusterID(ctx, nil, "no-such-cluster")
	if err != nil {
		t.Fatalf("GetByClusterID miss: %v", err)
	}
	if missing != nil {
		t.Fatal("missing cluster id should return nil, nil")
	}
}

func TestGroupRepoIncrementMemberCountIsRelative(t *testing.T) {
	db, log := testSetup(t)
	repo := NewGroupRepo(db, log)
	ctx := context.Background()

	g := &types.SharedWoundGroup{
		ID: uuid.New(), ClusterID: "increment", Name: "G",
		HealingStage: types.StageEarly, MemberCount: 5, MaxMembers: 50,
		CohesionScore: 0.7, IsActive: true, AIManaged: true,
	}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	// Two relative updates from independent sessions must both land; a
	// full-row save here would overwrite one of them.
	if err := repo.IncrementMemberCount(ctx, nil, g.ID, 1); err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if err := repo.IncrementMemberCount(ctx, nil, g.ID, 2); err != nil {
		t.Fatalf("second increment: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, g.ID)
	if err != nil || got == nil {
		t.Fatalf("reload group: group=%v err=%v", got, err)
	}
	if got.MemberCount != 8 {
		t.Fatalf("member count = %d, want 8 after +1 and +2", got.MemberCount)
	}
	if got.CohesionScore != 0.7 {
		t.Fatalf("cohesion = %v, other columns must be untouched", got.CohesionScore)
	}
}

func TestMembershipRepoAggregates(t *testing.T) {
	db, log := testSetup(t)
	memberships := NewMembershipRepo(db, log)
	ctx := context.Background()

	group := &types.SharedWoundGroup{ID: uuid.New(), ClusterID: "agg", Name: "G", HealingStage: types.StageEarly, MaxMembers: 50, IsActive: true, AIManaged: true}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	circleA := &types.Circle{ID: uuid.New(), SharedWoundGroupID: group.ID, Name: "A", MaxMembers: 8, Status: types.CircleStatusActive}
	circleB := &types.Circle{ID: uuid.New(), SharedWoundGroupID: group.ID, Name: "B", MaxMembers: 8, Status: types.CircleStatusActive}
	if err := db.Create(circleA).Error; err != nil {
		t.Fatalf("seed circle: %v", err)
	}
	if err := db.Create(circleB).Error; err != nil {
		t.Fatalf("seed circle: %v", err)
	}

	now := time.Now().UTC()
	older := now.Add(-10 * 24 * time.Hour)
	seed := func(circleID uuid.UUID, lastActive *time.Time, messages int, status string) {
		m := &types.CircleMembership{
			ID: uuid.New(), CircleID: circleID, SharedWoundGroupID: group.ID,
			UserID: seedUser(t, db), Status: status, JoinedAt: older,
			LastActiveAt: lastActive, MessageCount: messages,
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed membership: %v", err)
		}
	}
	seed(circleA.ID, &now, 10, types.MembershipStatusActive)
	seed(circleA.ID, &older, 4, types.MembershipStatusActive)
	seed(circleB.ID, nil, 6, types.MembershipStatusActive)
	seed(circleB.ID, &now, 99, types.MembershipStatusLeft)

	counts, err := memberships.ActiveCountsByCircle(ctx, nil, group.ID)
	if err != nil {
		t.Fatalf("ActiveCountsByCircle: %v", err)
	}
	if counts[circleA.ID] != 2 || counts[circleB.ID] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	recent, err := memberships.CountRecentlyActiveByGroup(ctx, nil, group.ID, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("CountRecentlyActiveByGroup: %v", err)
	}
	if recent != 1 {
		t.Fatalf("recently active = %d, want 1", recent)
	}

	sum, err := memberships.SumMessageCountByGroup(ctx, nil, group.ID)
	if err != nil {
		t.Fatalf("SumMessageCountByGroup: %v", err)
	}
	if sum != 20 {
		t.Fatalf("message sum = %d, want 20 excluding the departed member", sum)
	}

	if err := memberships.DeactivateByGroup(ctx, nil, group.ID, now); err != nil {
		t.Fatalf("DeactivateByGroup: %v", err)
	}
	remaining, err := memberships.CountActiveByGroup(ctx, nil, group.ID)
	if err != nil {
		t.Fatalf("CountActiveByGroup: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("still %d active memberships after deactivation", remaining)
	}
}

func TestCircleRepoCloseByGroup(t *testing.T) {
	db, log := testSetup(t)
	circles := NewCircleRepo(db, log)
	ctx := context.Background()

	group := &types.SharedWoundGroup{ID: uuid.New(), ClusterID: "close", Name: "G", HealingStage: types.StageEarly, MaxMembers: 50, IsActive: true, AIManaged: true}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	for i := 0; i < 3; i++ {
		c := &types.Circle{ID: uuid.New(), SharedWoundGroupID: group.ID, Name: "C", MaxMembers: 8, Status: types.CircleStatusActive}
		if err := circles.Create(ctx, nil, c); err != nil {
			t.Fatalf("create circle: %v", err)
		}
	}

	open, err := circles.GetActiveByGroup(ctx, nil, group.ID)
	if err != nil {
		t.Fatalf("GetActiveByGroup: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("open circles = %d, want 3", len(open))
	}

	if err := circles.CloseByGroup(ctx, nil, group.ID, time.Now().UTC()); err != nil {
		t.Fatalf("CloseByGroup: %v", err)
	}
	open, err = circles.GetActiveByGroup(ctx, nil, group.ID)
	if err != nil {
		t.Fatalf("GetActiveByGroup after close: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("open circles after close = %d, want 0", len(open))
	}
	total, err := circles.CountByGroup(ctx, nil, group.ID)
	if err != nil {
		t.Fatalf("CountByGroup: %v", err)
	}
	if total != 3 {
		t.Fatalf("total circles = %d, closing must not delete rows", total)
	}
}

func TestReviewRunRepoLatest(t *testing.T) {
	db, log := testSetup(t)
	runs := NewReviewRunRepo(db, log)
	ctx := context.Background()

	latest, err := runs.GetLatest(ctx, nil)
	if err != nil {
		t.Fatalf("GetLatest on empty table: %v", err)
	}
	if latest != nil {
		t.Fatal("empty table should yield nil, nil")
	}

	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	first := &types.GroupReviewRun{ID: uuid.New(), StartedAt: earlier, TriggeredBy: "scheduler", GroupsCreated: 1}
	second := &types.GroupReviewRun{ID: uuid.New(), StartedAt: now, TriggeredBy: "manual", GroupsCreated: 2}
	if err := runs.Create(ctx, nil, first); err != nil {
		t.Fatalf("create first run: %v", err)
	}
	if err := runs.Create(ctx, nil, second); err != nil {
		t.Fatalf("create second run: %v", err)
	}

	latest, err = runs.GetLatest(ctx, nil)
	if err != nil || latest == nil {
		t.Fatalf("GetLatest: run=%v err=%v", latest, err)
	}
	if latest.ID != second.ID {
		t.Fatal("latest run should be the most recently started")
	}
}
