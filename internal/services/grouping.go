package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/clustering"
	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/repos"
	"github.com/solacegrove/solace-backend/internal/similarity"
	"github.com/solacegrove/solace-backend/internal/types"
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

// ErrRunInProgress is returned when another process holds the batch lock.
var ErrRunInProgress = errors.New("grouping run already in progress")

// RunReport is the aggregate outcome of one batch invocation.
type RunReport struct {
	ProfilesRefreshed int       `json:"profiles_refreshed"`
	GroupsCreated     int       `json:"groups_created"`
	GroupsUpdated     int       `json:"groups_updated"`
	GroupsMerged      int       `json:"groups_merged"`
	GroupsSplit       int       `json:"groups_split"`
	GroupsArchived    int       `json:"groups_archived"`
	CirclesCreated    int       `json:"circles_created"`
	UsersReassigned   int       `json:"users_reassigned"`
	Failures          int       `json:"failures"`
	Timestamp         time.Time `json:"timestamp"`
}

// GroupingService owns the group lifecycle: creating groups from clusters of
// unassigned profiles, reviewing existing groups, merging, splitting,
// archiving, and topping up circle capacity. RunOnce is the single entry
// point invoked by the scheduler.
type GroupingService interface {
	RunOnce(ctx context.Context) (*RunReport, error)
}

type groupingService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         config.Batch
	profiles    repos.ProfileRepo
	groups      repos.GroupRepo
	circles     repos.CircleRepo
	memberships repos.MembershipRepo
	runs        repos.ReviewRunRepo
	profileSvc  ProfileService
	allocator   CircleAllocator
	lock        RunLock
}

func NewGroupingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Batch,
	profiles repos.ProfileRepo,
	groups repos.GroupRepo,
	circles repos.CircleRepo,
	memberships repos.MembershipRepo,
	runs repos.ReviewRunRepo,
	profileSvc ProfileService,
	allocator CircleAllocator,
	lock RunLock,
) GroupingService {
	return &groupingService{
		db:          db,
		log:         baseLog.With("service", "GroupingService"),
		cfg:         cfg,
		profiles:    profiles,
		groups:      groups,
		circles:     circles,
		memberships: memberships,
		runs:        runs,
		profileSvc:  profileSvc,
		allocator:   allocator,
		lock:        lock,
	}
}

func (s *groupingService) RunOnce(ctx context.Context) (*RunReport, error) {
	release, acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		s.log.Warn("Skipping grouping run, lock held by another process")
		return nil, ErrRunInProgress
	}
	defer release(ctx)

	started := time.Now().UTC()
	report := &RunReport{Timestamp: started}
	s.log.Info("Grouping run started")

	refreshed, failed, err := s.profileSvc.RefreshStaleProfiles(ctx)
	report.ProfilesRefreshed = refreshed
	report.Failures += failed
	if err != nil {
		return report, fmt.Errorf("refresh profiles: %w", err)
	}

	// Stages run strictly in order: each one's output feeds the next.
	s.createGroupsFromClusters(ctx, report)
	s.reviewDueGroups(ctx, report)
	s.mergeSimilarGroups(ctx, report)
	s.topUpCircles(ctx, report)

	finished := time.Now().UTC()
	run := &types.GroupReviewRun{
		ID:                uuid.New(),
		StartedAt:         started,
		FinishedAt:        &finished,
		TriggeredBy:       "scheduler",
		ProfilesRefreshed: report.ProfilesRefreshed,
		GroupsCreated:     report.GroupsCreated,
		GroupsUpdated:     report.GroupsUpdated,
		GroupsMerged:      report.GroupsMerged,
		GroupsSplit:       report.GroupsSplit,
		GroupsArchived:    report.GroupsArchived,
		CirclesCreated:    report.CirclesCreated,
		UsersReassigned:   report.UsersReassigned,
		Failures:          report.Failures,
	}
	if err := s.runs.Create(ctx, nil, run); err != nil {
		s.log.Warn("Failed to persist run record", "error", err)
		report.Failures++
	}

	s.log.Info("Grouping run finished",
		"profiles_refreshed", report.ProfilesRefreshed,
		"groups_created", report.GroupsCreated,
		"groups_updated", report.GroupsUpdated,
		"groups_merged", report.GroupsMerged,
		"groups_split", report.GroupsSplit,
		"groups_archived", report.GroupsArchived,
		"circles_created", report.CirclesCreated,
		"users_reassigned", report.UsersReassigned,
		"failures", report.Failures,
		"duration", finished.Sub(started).String(),
	)
	return report, nil
}

// createGroupsFromClusters clusters every unassigned profile and materializes
// a group for each valid, confident cluster.
func (s *groupingService) createGroupsFromClusters(ctx context.Context, report *RunReport) {
	unassigned, err := s.profiles.GetUnassigned(ctx, nil)
	if err != nil {
		s.log.Error("Failed to load unassigned profiles", "error", err)
		report.Failures++
		return
	}

	vectors, profiles := vectorsOf(unassigned)
	if len(profiles) < s.cfg.MinGroupSize {
		s.log.Debug("Not enough unassigned profiles to cluster", "count", len(profiles))
		return
	}

	result, err := clustering.Run(vectors, clustering.Options{
		Method:       clustering.Method(s.cfg.ClusteringMethod),
		MinGroupSize: s.cfg.MinGroupSize,
	})
	if err != nil {
		s.log.Error("Clustering failed", "error", err, "profiles", len(profiles))
		report.Failures++
		return
	}
	s.log.Info("Clustered unassigned profiles",
		"profiles", len(profiles),
		"clusters", len(result.Clusters),
		"valid_clusters", len(result.ValidClusters()),
		"noise", result.NoiseCount,
		"silhouette", result.Silhouette,
		"calinski_harabasz", result.CalinskiHarabasz,
	)

	for _, cluster := range result.ValidClusters() {
		members := make([]*types.UserClusterProfile, 0, len(cluster.Indices))
		memberVectors := make([][]float64, 0, len(cluster.Indices))
		for _, idx := range cluster.Indices {
			members = append(members, profiles[idx])
			memberVectors = append(memberVectors, vectors[idx])
		}

		confidence := similarity.GroupConfidence(memberVectors)
		if confidence < s.cfg.ConfidenceThreshold {
			s.log.Debug("Cluster below confidence threshold", "size", len(members), "confidence", confidence)
			continue
		}

		if err := s.materializeGroup(ctx, members, confidence, report); err != nil {
			s.log.Warn("Failed to create group from cluster", "size", len(members), "error", err)
			report.Failures++
		}
	}
}

func (s *groupingService) materializeGroup(ctx context.Context, members []*types.UserClusterProfile, confidence float64, report *RunReport) error {
	summary := summarizeProfiles(members, s.cfg.ThemeFrequency)
	clusterID := clusterContentID(summary)

	existing, err := s.groups.GetByClusterID(ctx, nil, clusterID)
	if err != nil {
		return fmt.Errorf("lookup cluster id: %w", err)
	}
	if existing != nil {
		// Identical characteristics already materialized; creation is
		// idempotent.
		s.log.Debug("Cluster already has a group", "cluster_id", clusterID, "group_id", existing.ID)
		return nil
	}

	now := time.Now().UTC()
	next := now.Add(s.cfg.ReviewInterval)
	group := &types.SharedWoundGroup{
		ID:               uuid.New(),
		ClusterID:        clusterID,
		Name:             groupName(summary),
		Description:      groupDescription(summary),
		EmotionalPattern: mustMarshal(summary.Pattern),
		TraumaThemes:     mustMarshal(summary.Themes),
		HealingStage:     summary.Stage,
		MemberCount:      len(members),
		MaxMembers:       s.cfg.MaxGroupSize,
		CohesionScore:    confidence,
		ConfidenceScore:  confidence,
		GrowthPotential:  growthPotential(len(members), s.cfg.MaxGroupSize, confidence),
		IsActive:         true,
		AIManaged:        true,
		LastAIReview:     &now,
		NextAIReview:     &next,
	}

	userIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.groups.Create(ctx, tx, group); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		created, err := s.allocator.AssignMembers(ctx, tx, group, userIDs)
		if err != nil {
			return fmt.Errorf("assign members: %w", err)
		}
		if err := s.profiles.MarkClustered(ctx, tx, userIDs, now); err != nil {
			return fmt.Errorf("mark clustered: %w", err)
		}
		report.GroupsCreated++
		report.CirclesCreated += created
		s.log.Info("Created group", "group_id", group.ID, "members", len(userIDs), "confidence", confidence, "stage", summary.Stage)
		return nil
	})
}

// reviewDueGroups re-scores every group whose review timestamp elapsed. Each
// group is an independent unit of work in its own transaction; one failure
// never aborts the siblings.
func (s *groupingService) reviewDueGroups(ctx context.Context, report *RunReport) {
	due, err := s.groups.GetDueForReview(ctx, nil, time.Now().UTC())
	if err != nil {
		s.log.Error("Failed to load groups due for review", "error", err)
		report.Failures++
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("Reviewing groups", "due", len(due))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerConcurrency)
	for _, group := range due {
		group := group
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("Group review panicked", "group_id", group.ID, "panic", r)
					mu.Lock()
					report.Failures++
					mu.Unlock()
				}
			}()

			err := s.db.WithContext(gctx).Transaction(func(tx *gorm.DB) error {
				return s.reviewGroup(gctx, tx, group, report, &mu)
			})
			if err != nil {
				s.log.Warn("Group review failed, will retry next cycle", "group_id", group.ID, "error", err)
				mu.Lock()
				report.Failures++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *groupingService) reviewGroup(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, report *RunReport, mu *sync.Mutex) error {
	now := time.Now().UTC()

	members, err := s.memberships.GetActiveByGroup(ctx, tx, group.ID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	memberCount := len(members)

	if memberCount == 0 {
		if err := s.archiveGroup(ctx, tx, group, now); err != nil {
			return err
		}
		mu.Lock()
		report.GroupsArchived++
		mu.Unlock()
		return nil
	}

	userIDs := make([]uuid.UUID, 0, memberCount)
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	memberProfiles, err := s.profiles.GetByUserIDs(ctx, tx, userIDs)
	if err != nil {
		return fmt.Errorf("load member profiles: %w", err)
	}
	memberVectors, keptProfiles := vectorsOf(memberProfiles)

	cohesion := similarity.GroupConfidence(memberVectors)
	activity, err := s.activityScore(ctx, tx, group.ID, memberCount, now)
	if err != nil {
		return fmt.Errorf("activity score: %w", err)
	}

	group.MemberCount = memberCount
	group.CohesionScore = cohesion
	group.ActivityScore = activity
	group.GrowthPotential = growthPotential(memberCount, group.MaxMembers, cohesion)

	summary := summarizeProfiles(keptProfiles, s.cfg.ThemeFrequency)
	if len(keptProfiles) > 0 {
		group.EmotionalPattern = mustMarshal(summary.Pattern)
		group.TraumaThemes = mustMarshal(summary.Themes)
		group.HealingStage = summary.Stage
	}

	switch {
	case cohesion < s.cfg.CohesionThreshold:
		if memberCount < s.cfg.MinGroupSize {
			if err := s.archiveGroup(ctx, tx, group, now); err != nil {
				return err
			}
			mu.Lock()
			report.GroupsArchived++
			mu.Unlock()
			return nil
		}
		moved, err := s.reassignOutliers(ctx, tx, group, keptProfiles, memberVectors, now)
		if err != nil {
			return err
		}
		group.MemberCount -= moved
		mu.Lock()
		report.UsersReassigned += moved
		mu.Unlock()

	case memberCount > group.MaxMembers:
		didSplit, err := s.splitGroup(ctx, tx, group, keptProfiles, now)
		if err != nil {
			return err
		}
		if didSplit {
			mu.Lock()
			report.GroupsSplit++
			mu.Unlock()
		}
	}

	// Timestamps advance on every branch so a failing group is retried on
	// schedule, not hot-looped.
	next := now.Add(s.cfg.ReviewInterval)
	group.LastAIReview = &now
	group.NextAIReview = &next
	if err := s.groups.Save(ctx, tx, group); err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	if group.IsActive {
		mu.Lock()
		report.GroupsUpdated++
		mu.Unlock()
	}
	return nil
}

// activityScore blends the recently-active member ratio with message volume.
func (s *groupingService) activityScore(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, memberCount int, now time.Time) (float64, error) {
	if memberCount == 0 {
		return 0, nil
	}
	recent, err := s.memberships.CountRecentlyActiveByGroup(ctx, tx, groupID, now.Add(-s.cfg.ReviewInterval))
	if err != nil {
		return 0, err
	}
	messages, err := s.memberships.SumMessageCountByGroup(ctx, tx, groupID)
	if err != nil {
		return 0, err
	}
	recentRatio := float64(recent) / float64(memberCount)
	// 20 messages per member per cycle saturates the volume component.
	volume := float64(messages) / (20 * float64(memberCount))
	if volume > 1 {
		volume = 1
	}
	return vectormath.Clamp01(0.6*recentRatio + 0.4*volume), nil
}

func (s *groupingService) archiveGroup(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, now time.Time) error {
	group.IsActive = false
	group.MemberCount = 0
	next := now.Add(s.cfg.ReviewInterval)
	group.LastAIReview = &now
	group.NextAIReview = &next
	if err := s.groups.Save(ctx, tx, group); err != nil {
		return fmt.Errorf("archive group: %w", err)
	}
	if err := s.circles.CloseByGroup(ctx, tx, group.ID, now); err != nil {
		return fmt.Errorf("close circles: %w", err)
	}
	if err := s.memberships.DeactivateByGroup(ctx, tx, group.ID, now); err != nil {
		return fmt.Errorf("deactivate memberships: %w", err)
	}
	s.log.Info("Archived group", "group_id", group.ID)
	return nil
}

// reassignOutliers moves the least-similar members of a low-cohesion group
// into better-matching active groups. Best effort: members with no match
// above the threshold stay put.
func (s *groupingService) reassignOutliers(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, memberProfiles []*types.UserClusterProfile, memberVectors [][]float64, now time.Time) (int, error) {
	if len(memberProfiles) == 0 {
		return 0, nil
	}
	centroid, ok := vectormath.MeanVector(memberVectors)
	if !ok {
		return 0, nil
	}

	type scored struct {
		profile *types.UserClusterProfile
		sim     float64
	}
	ranked := make([]scored, 0, len(memberProfiles))
	for i, p := range memberProfiles {
		ranked = append(ranked, scored{profile: p, sim: vectormath.CosineSimilarity(memberVectors[i], centroid)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].sim < ranked[j].sim })

	// At most the bottom fifth of the roster moves in one cycle.
	budget := len(ranked) / 5
	if budget < 1 {
		budget = 1
	}

	candidates, err := s.groups.GetActive(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("load active groups: %w", err)
	}

	moved := 0
	for _, r := range ranked[:budget] {
		var best *types.SharedWoundGroup
		bestScore := 0.0
		for _, g := range candidates {
			if g.ID == group.ID || !g.IsActive || g.MemberCount >= g.MaxMembers {
				continue
			}
			score := similarity.GroupSimilarity(r.profile, g)
			if score >= s.cfg.MatchThreshold && score > bestScore {
				best, bestScore = g, score
			}
		}
		if best == nil {
			continue
		}

		if err := s.memberships.DeactivateUserInGroup(ctx, tx, r.profile.UserID, group.ID, now); err != nil {
			return moved, fmt.Errorf("deactivate membership: %w", err)
		}
		if _, err := s.allocator.AssignMembers(ctx, tx, best, []uuid.UUID{r.profile.UserID}); err != nil {
			return moved, fmt.Errorf("assign to new group: %w", err)
		}
		// Relative update: concurrent reviews may be feeding the same target,
		// so a full-row save would lose their increments.
		if err := s.groups.IncrementMemberCount(ctx, tx, best.ID, 1); err != nil {
			return moved, fmt.Errorf("update target member count: %w", err)
		}
		best.MemberCount++
		moved++
		s.log.Info("Reassigned outlier member", "user_id", r.profile.UserID, "from_group", group.ID, "to_group", best.ID, "similarity", bestScore)
	}
	return moved, nil
}

// splitGroup re-clusters an oversized group's members. The largest
// sub-cluster keeps the existing group; the rest become new groups. Members
// no sub-cluster claimed stay with the original so nobody is lost.
func (s *groupingService) splitGroup(ctx context.Context, tx *gorm.DB, group *types.SharedWoundGroup, memberProfiles []*types.UserClusterProfile, now time.Time) (bool, error) {
	vectors, profiles := vectorsOf(memberProfiles)
	if len(profiles) < 2*s.cfg.MinGroupSize {
		return false, nil
	}

	result, err := clustering.Run(vectors, clustering.Options{
		Method:       clustering.Method(s.cfg.ClusteringMethod),
		MinGroupSize: s.cfg.MinGroupSize,
	})
	if err != nil {
		return false, fmt.Errorf("re-cluster members: %w", err)
	}
	valid := result.ValidClusters()
	if len(valid) < 2 {
		// A cohesive oversized group rarely separates density-wise; force a
		// two-way centroid split instead.
		result, err = clustering.Run(vectors, clustering.Options{
			Method:       clustering.MethodKMeans,
			MinGroupSize: s.cfg.MinGroupSize,
			KMeansK:      2,
		})
		if err != nil {
			return false, fmt.Errorf("forced split: %w", err)
		}
		valid = result.ValidClusters()
	}
	if len(valid) < 2 {
		s.log.Info("Split produced fewer than two valid sub-clusters, keeping group intact", "group_id", group.ID)
		return false, nil
	}

	sort.Slice(valid, func(i, j int) bool { return len(valid[i].Indices) > len(valid[j].Indices) })

	assigned := map[int]bool{}
	for _, c := range valid {
		for _, idx := range c.Indices {
			assigned[idx] = true
		}
	}

	// Everything outside a valid sub-cluster is retained by the original.
	retained := len(valid[0].Indices) + (len(profiles) - len(assigned))

	for _, sub := range valid[1:] {
		subProfiles := make([]*types.UserClusterProfile, 0, len(sub.Indices))
		subVectors := make([][]float64, 0, len(sub.Indices))
		subUserIDs := make([]uuid.UUID, 0, len(sub.Indices))
		for _, idx := range sub.Indices {
			subProfiles = append(subProfiles, profiles[idx])
			subVectors = append(subVectors, vectors[idx])
			subUserIDs = append(subUserIDs, profiles[idx].UserID)
		}

		summary := summarizeProfiles(subProfiles, s.cfg.ThemeFrequency)
		confidence := similarity.GroupConfidence(subVectors)
		next := now.Add(s.cfg.ReviewInterval)
		newGroup := &types.SharedWoundGroup{
			ID:               uuid.New(),
			ClusterID:        clusterContentID(summary),
			Name:             groupName(summary),
			Description:      groupDescription(summary),
			EmotionalPattern: mustMarshal(summary.Pattern),
			TraumaThemes:     mustMarshal(summary.Themes),
			HealingStage:     summary.Stage,
			MemberCount:      len(subUserIDs),
			MaxMembers:       s.cfg.MaxGroupSize,
			CohesionScore:    confidence,
			ConfidenceScore:  confidence,
			GrowthPotential:  growthPotential(len(subUserIDs), s.cfg.MaxGroupSize, confidence),
			IsActive:         true,
			AIManaged:        true,
			LastAIReview:     &now,
			NextAIReview:     &next,
		}
		if err := s.groups.Create(ctx, tx, newGroup); err != nil {
			return false, fmt.Errorf("create split group: %w", err)
		}
		for _, userID := range subUserIDs {
			if err := s.memberships.DeactivateUserInGroup(ctx, tx, userID, group.ID, now); err != nil {
				return false, fmt.Errorf("move member out: %w", err)
			}
		}
		if _, err := s.allocator.AssignMembers(ctx, tx, newGroup, subUserIDs); err != nil {
			return false, fmt.Errorf("assign split members: %w", err)
		}
		s.log.Info("Split members into new group", "from_group", group.ID, "new_group", newGroup.ID, "members", len(subUserIDs))
	}

	group.MemberCount = retained
	retainedProfiles := make([]*types.UserClusterProfile, 0, retained)
	retainedVectors := make([][]float64, 0, retained)
	for _, idx := range valid[0].Indices {
		retainedProfiles = append(retainedProfiles, profiles[idx])
		retainedVectors = append(retainedVectors, vectors[idx])
	}
	for idx, p := range profiles {
		if !assigned[idx] {
			retainedProfiles = append(retainedProfiles, p)
			retainedVectors = append(retainedVectors, vectors[idx])
		}
	}
	summary := summarizeProfiles(retainedProfiles, s.cfg.ThemeFrequency)
	group.EmotionalPattern = mustMarshal(summary.Pattern)
	group.TraumaThemes = mustMarshal(summary.Themes)
	group.HealingStage = summary.Stage
	group.CohesionScore = similarity.GroupConfidence(retainedVectors)
	return true, nil
}

// mergeSimilarGroups folds near-duplicate cohorts together: when two active
// groups' summaries score above the merge threshold and fit one roster, the
// smaller moves into the larger and is archived.
func (s *groupingService) mergeSimilarGroups(ctx context.Context, report *RunReport) {
	active, err := s.groups.GetActive(ctx, nil)
	if err != nil {
		s.log.Error("Failed to load active groups for merge pass", "error", err)
		report.Failures++
		return
	}
	if len(active) < 2 {
		return
	}

	for _, pair := range planMerges(active, s.cfg.MergeThreshold, s.cfg.MaxGroupSize) {
		moved, err := s.mergeGroups(ctx, pair.target, pair.source)
		if err != nil {
			s.log.Warn("Group merge failed", "target", pair.target.ID, "source", pair.source.ID, "error", err)
			report.Failures++
			continue
		}
		report.GroupsMerged++
		report.UsersReassigned += moved
	}
}

type mergePair struct {
	target *types.SharedWoundGroup
	source *types.SharedWoundGroup
}

// planMerges pairs active groups whose summaries score at or above the merge
// threshold and whose combined roster fits one group. The smaller group is
// always the source, a group absorbed once is never paired again, and the
// size gate tracks projected rosters so chained merges cannot overshoot the
// maximum.
func planMerges(active []*types.SharedWoundGroup, threshold float64, maxSize int) []mergePair {
	absorbed := map[uuid.UUID]bool{}
	size := make(map[uuid.UUID]int, len(active))
	for _, g := range active {
		size[g.ID] = g.MemberCount
	}

	out := []mergePair{}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if absorbed[a.ID] || absorbed[b.ID] {
				continue
			}
			if groupSimilarityBetween(a, b) < threshold {
				continue
			}
			if size[a.ID]+size[b.ID] > maxSize {
				continue
			}
			target, source := a, b
			if size[b.ID] > size[a.ID] {
				target, source = b, a
			}
			absorbed[source.ID] = true
			size[target.ID] += size[source.ID]
			out = append(out, mergePair{target: target, source: source})
		}
	}
	return out
}

// mergeGroups moves every active source member into the target and archives
// the source. Returns the number of members moved.
func (s *groupingService) mergeGroups(ctx context.Context, target, source *types.SharedWoundGroup) (int, error) {
	now := time.Now().UTC()
	moved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members, err := s.memberships.GetActiveByGroup(ctx, tx, source.ID)
		if err != nil {
			return fmt.Errorf("load source members: %w", err)
		}
		userIDs := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			userIDs = append(userIDs, m.UserID)
		}

		if err := s.memberships.DeactivateByGroup(ctx, tx, source.ID, now); err != nil {
			return fmt.Errorf("deactivate source members: %w", err)
		}
		if _, err := s.allocator.AssignMembers(ctx, tx, target, userIDs); err != nil {
			return fmt.Errorf("assign merged members: %w", err)
		}

		source.IsActive = false
		source.MemberCount = 0
		if err := s.groups.Save(ctx, tx, source); err != nil {
			return fmt.Errorf("archive source group: %w", err)
		}
		if err := s.circles.CloseByGroup(ctx, tx, source.ID, now); err != nil {
			return fmt.Errorf("close source circles: %w", err)
		}

		if err := s.groups.IncrementMemberCount(ctx, tx, target.ID, len(userIDs)); err != nil {
			return fmt.Errorf("update target member count: %w", err)
		}
		target.MemberCount += len(userIDs)
		moved = len(userIDs)
		s.log.Info("Merged groups", "target", target.ID, "source", source.ID, "moved_members", moved)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// topUpCircles ensures every active group has enough open circles for its
// roster.
func (s *groupingService) topUpCircles(ctx context.Context, report *RunReport) {
	active, err := s.groups.GetActive(ctx, nil)
	if err != nil {
		s.log.Error("Failed to load active groups for circle top-up", "error", err)
		report.Failures++
		return
	}
	for _, group := range active {
		if group.MemberCount < s.cfg.MinGroupSize {
			continue
		}
		group := group
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			created, err := s.allocator.EnsureCapacity(ctx, tx, group, group.MemberCount)
			if err != nil {
				return err
			}
			report.CirclesCreated += created
			return nil
		})
		if err != nil {
			s.log.Warn("Circle top-up failed", "group_id", group.ID, "error", err)
			report.Failures++
		}
	}
}

// growthPotential estimates how much room and pull a group has left.
func growthPotential(memberCount, maxMembers int, cohesion float64) float64 {
	if maxMembers <= 0 {
		return 0
	}
	headroom := 1 - float64(memberCount)/float64(maxMembers)
	if headroom < 0 {
		headroom = 0
	}
	return vectormath.Clamp01(0.5*headroom + 0.5*cohesion)
}
