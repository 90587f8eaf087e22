package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/types"
)

// newReassignFixture wires a grouping service over fake repos; only the
// repo-backed paths are exercised, never the *gorm.DB.
func newReassignFixture(t *testing.T, targets []*types.SharedWoundGroup) (*groupingService, *fakeGroupRepo, *fakeMembershipRepo) {
	t.Helper()
	groups := &fakeGroupRepo{groups: targets}
	circles := &fakeCircleRepo{}
	memberships := &fakeMembershipRepo{}
	cfg := config.DefaultBatch()
	log := testLogger(t)
	svc := &groupingService{
		log:         log,
		cfg:         cfg,
		groups:      groups,
		circles:     circles,
		memberships: memberships,
		allocator:   NewCircleAllocator(log, cfg, circles, memberships),
	}
	return svc, groups, memberships
}

func griefMemberVector() []float64 {
	v := make([]float64, VectorDim)
	v[0] = 0.8 // sadness
	v[2] = 0.6 // fear
	v[8] = 1   // early stage
	return v
}

func joyMemberVector() []float64 {
	v := make([]float64, VectorDim)
	v[3] = 0.9 // joy
	v[4] = 0.4 // surprise
	v[11] = 1  // growth stage
	return v
}

func joyProfile(userID uuid.UUID) *types.UserClusterProfile {
	return &types.UserClusterProfile{
		ID:               uuid.New(),
		UserID:           userID,
		DominantEmotions: mustMarshal(map[string]float64{"joy": 0.9, "surprise": 0.4}),
		TraumaThemes:     mustMarshal([]string{"new_beginnings"}),
		HealingStage:     types.StageGrowth,
		ClusterVector:    mustMarshal(joyMemberVector()),
	}
}

func griefProfile(userID uuid.UUID) *types.UserClusterProfile {
	return &types.UserClusterProfile{
		ID:               uuid.New(),
		UserID:           userID,
		DominantEmotions: mustMarshal(map[string]float64{"sadness": 0.8, "fear": 0.6}),
		TraumaThemes:     mustMarshal([]string{"grief"}),
		HealingStage:     types.StageEarly,
		ClusterVector:    mustMarshal(griefMemberVector()),
	}
}

func joyGroup(memberCount int) *types.SharedWoundGroup {
	return &types.SharedWoundGroup{
		ID:               uuid.New(),
		ClusterID:        uuid.NewString(),
		Name:             "New Beginnings",
		EmotionalPattern: mustMarshal(map[string]float64{"joy": 0.9, "surprise": 0.4}),
		TraumaThemes:     mustMarshal([]string{"new_beginnings"}),
		HealingStage:     types.StageGrowth,
		MemberCount:      memberCount,
		MaxMembers:       50,
		IsActive:         true,
		AIManaged:        true,
	}
}

func griefGroup(memberCount int) *types.SharedWoundGroup {
	return &types.SharedWoundGroup{
		ID:               uuid.New(),
		ClusterID:        uuid.NewString(),
		Name:             "Grief Support",
		EmotionalPattern: mustMarshal(map[string]float64{"sadness": 0.8, "fear": 0.6}),
		TraumaThemes:     mustMarshal([]string{"grief"}),
		HealingStage:     types.StageEarly,
		MemberCount:      memberCount,
		MaxMembers:       50,
		IsActive:         true,
		AIManaged:        true,
	}
}

func TestReassignOutliersMovesLeastSimilarMembers(t *testing.T) {
	target := joyGroup(10)
	full := joyGroup(50)
	unrelated := griefGroup(10)
	svc, _, memberships := newReassignFixture(t, []*types.SharedWoundGroup{target, full, unrelated})

	group := griefGroup(10)
	profiles := []*types.UserClusterProfile{}
	vectors := [][]float64{}
	outlierIDs := map[uuid.UUID]bool{}
	for i := 0; i < 8; i++ {
		p := griefProfile(uuid.New())
		profiles = append(profiles, p)
		vectors = append(vectors, griefMemberVector())
	}
	for i := 0; i < 2; i++ {
		p := joyProfile(uuid.New())
		outlierIDs[p.UserID] = true
		profiles = append(profiles, p)
		vectors = append(vectors, joyMemberVector())
	}

	moved, err := svc.reassignOutliers(context.Background(), nil, group, profiles, vectors, time.Now().UTC())
	if err != nil {
		t.Fatalf("reassignOutliers: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}
	if target.MemberCount != 12 {
		t.Fatalf("target member count = %d, want 12", target.MemberCount)
	}

	placed, err := memberships.GetActiveByGroup(context.Background(), nil, target.ID)
	if err != nil {
		t.Fatalf("load target memberships: %v", err)
	}
	if len(placed) != 2 {
		t.Fatalf("target gained %d memberships, want 2", len(placed))
	}
	for _, m := range placed {
		if !outlierIDs[m.UserID] {
			t.Fatalf("moved user %s was not one of the outliers", m.UserID)
		}
	}
	for _, g := range []*types.SharedWoundGroup{full, unrelated} {
		got, err := memberships.GetActiveByGroup(context.Background(), nil, g.ID)
		if err != nil {
			t.Fatalf("load memberships: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("group %s gained %d members, want 0", g.Name, len(got))
		}
	}
}

func TestReassignOutliersBudgetIsBottomFifth(t *testing.T) {
	target := joyGroup(10)
	svc, _, memberships := newReassignFixture(t, []*types.SharedWoundGroup{target})

	// Four members would qualify for the target, but a ten-member roster
	// releases at most two per cycle.
	group := griefGroup(10)
	profiles := []*types.UserClusterProfile{}
	vectors := [][]float64{}
	for i := 0; i < 6; i++ {
		profiles = append(profiles, griefProfile(uuid.New()))
		vectors = append(vectors, griefMemberVector())
	}
	for i := 0; i < 4; i++ {
		profiles = append(profiles, joyProfile(uuid.New()))
		vectors = append(vectors, joyMemberVector())
	}

	moved, err := svc.reassignOutliers(context.Background(), nil, group, profiles, vectors, time.Now().UTC())
	if err != nil {
		t.Fatalf("reassignOutliers: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}
	if target.MemberCount != 12 {
		t.Fatalf("target member count = %d, want 12", target.MemberCount)
	}
	placed, err := memberships.GetActiveByGroup(context.Background(), nil, target.ID)
	if err != nil {
		t.Fatalf("load target memberships: %v", err)
	}
	if len(placed) != 2 {
		t.Fatalf("target gained %d memberships, want 2", len(placed))
	}
}

func TestReassignOutliersRequiresQualifiedTarget(t *testing.T) {
	full := joyGroup(50)
	unrelated := griefGroup(10)
	svc, _, memberships := newReassignFixture(t, []*types.SharedWoundGroup{full, unrelated})

	// The outliers fit the full group perfectly, but it has no headroom, and
	// the group with headroom scores below the match threshold for them.
	group := griefGroup(10)
	profiles := []*types.UserClusterProfile{}
	vectors := [][]float64{}
	for i := 0; i < 8; i++ {
		profiles = append(profiles, griefProfile(uuid.New()))
		vectors = append(vectors, griefMemberVector())
	}
	for i := 0; i < 2; i++ {
		profiles = append(profiles, joyProfile(uuid.New()))
		vectors = append(vectors, joyMemberVector())
	}

	moved, err := svc.reassignOutliers(context.Background(), nil, group, profiles, vectors, time.Now().UTC())
	if err != nil {
		t.Fatalf("reassignOutliers: %v", err)
	}
	if moved != 0 {
		t.Fatalf("moved = %d, want 0 with no qualified target", moved)
	}
	if len(memberships.memberships) != 0 {
		t.Fatalf("recorded %d memberships, want 0", len(memberships.memberships))
	}
}

func TestPlanMergesPairsSimilarGroupsSmallerIntoLarger(t *testing.T) {
	a := joyGroup(20)
	b := joyGroup(5)
	c := joyGroup(5)

	pairs := planMerges([]*types.SharedWoundGroup{a, b, c}, 0.85, 50)
	if len(pairs) != 2 {
		t.Fatalf("planned %d merges, want 2", len(pairs))
	}
	for _, p := range pairs {
		if p.target.ID != a.ID {
			t.Fatalf("target = %s, want the largest group", p.target.ID)
		}
	}
	if pairs[0].source.ID != b.ID || pairs[1].source.ID != c.ID {
		t.Fatal("sources should be the smaller groups, absorbed in order")
	}
}

func TestPlanMergesBelowThreshold(t *testing.T) {
	pairs := planMerges([]*types.SharedWoundGroup{joyGroup(10), griefGroup(10)}, 0.85, 50)
	if len(pairs) != 0 {
		t.Fatalf("planned %d merges between dissimilar groups, want 0", len(pairs))
	}
}

func TestPlanMergesSizeGate(t *testing.T) {
	pairs := planMerges([]*types.SharedWoundGroup{joyGroup(30), joyGroup(25)}, 0.85, 50)
	if len(pairs) != 0 {
		t.Fatalf("planned %d merges exceeding the roster cap, want 0", len(pairs))
	}
}

func TestPlanMergesTracksProjectedSize(t *testing.T) {
	a := joyGroup(30)
	b := joyGroup(15)
	c := joyGroup(10)

	// After absorbing b the projected roster is 45, so c no longer fits even
	// though the original 30+10 would have.
	pairs := planMerges([]*types.SharedWoundGroup{a, b, c}, 0.85, 50)
	if len(pairs) != 1 {
		t.Fatalf("planned %d merges, want 1", len(pairs))
	}
	if pairs[0].target.ID != a.ID || pairs[0].source.ID != b.ID {
		t.Fatal("only the first pair should merge")
	}
}

func TestPlanMergesNeverReusesAbsorbedSource(t *testing.T) {
	a := joyGroup(20)
	b := joyGroup(10)
	c := joyGroup(10)

	pairs := planMerges([]*types.SharedWoundGroup{a, b, c}, 0.85, 50)
	seenSources := map[uuid.UUID]bool{}
	for _, p := range pairs {
		if seenSources[p.source.ID] {
			t.Fatalf("source %s absorbed twice", p.source.ID)
		}
		seenSources[p.source.ID] = true
		if seenSources[p.target.ID] {
			t.Fatalf("absorbed group %s reused as a target", p.target.ID)
		}
	}
}
