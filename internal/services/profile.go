package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/repos"
	"github.com/solacegrove/solace-backend/internal/types"
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

// VectorDim is the cluster-vector layout contract: six emotion-channel means,
// overall intensity, intensity variability, then a one-hot healing stage.
const VectorDim = 6 + 2 + 4

// ProfileService turns a user's raw emotion-analysis history into a
// UserClusterProfile. Fewer than the minimum observations is an
// insufficient-data condition, reported as a nil profile rather than an
// error.
type ProfileService interface {
	BuildProfile(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserClusterProfile, error)
	RefreshStaleProfiles(ctx context.Context) (refreshed int, failed int, err error)
	// GetOrRefresh serves on-demand lookups: a profile older than the
	// refresh window is rebuilt, otherwise the cached row is reused.
	GetOrRefresh(ctx context.Context, userID uuid.UUID) (*types.UserClusterProfile, error)
}

type profileService struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          config.Batch
	observations repos.ObservationRepo
	lifeEvents   repos.LifeEventRepo
	profiles     repos.ProfileRepo
}

func NewProfileService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Batch,
	observations repos.ObservationRepo,
	lifeEvents repos.LifeEventRepo,
	profiles repos.ProfileRepo,
) ProfileService {
	return &profileService{
		db:           db,
		log:          baseLog.With("service", "ProfileService"),
		cfg:          cfg,
		observations: observations,
		lifeEvents:   lifeEvents,
		profiles:     profiles,
	}
}

func (s *profileService) BuildProfile(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserClusterProfile, error) {
	now := time.Now().UTC()
	since := now.Add(-s.cfg.ObservationWindow)

	observations, err := s.observations.GetByUserSince(ctx, tx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if len(observations) < s.cfg.MinObservations {
		s.log.Debug("Insufficient observations for profile", "user_id", userID, "count", len(observations))
		return nil, nil
	}

	means := channelMeans(observations)
	maxima := make([]float64, 0, len(observations))
	for _, o := range observations {
		maxima = append(maxima, o.MaxIntensity())
	}
	intensity := vectormath.Mean(maxima)
	variability := vectormath.StdDev(maxima)
	stage := DeriveHealingStage(maxima)

	events, err := s.lifeEvents.GetByUser(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("load life events: %w", err)
	}
	themes := collectThemes(events)

	vector := BuildClusterVector(means, intensity, variability, stage)

	profile := &types.UserClusterProfile{
		ID:                 uuid.New(),
		UserID:             userID,
		DominantEmotions:   mustMarshal(means),
		EmotionIntensity:   intensity,
		EmotionVariability: variability,
		TraumaThemes:       mustMarshal(themes),
		HealingStage:       stage,
		CopingPatterns:     mustMarshal(deriveCopingPatterns(means, variability, maxima)),
		CommunicationStyle: deriveCommunicationStyle(variability),
		SupportPreference:  deriveSupportPreference(means),
		ActivityLevel:      deriveActivityLevel(len(observations), s.cfg.ObservationWindow),
		ClusterVector:      mustMarshal(vector),
		ClusterConfidence:  profileConfidence(len(observations), variability),
		UpdatedAt:          now,
	}

	if err := s.profiles.Upsert(ctx, tx, profile); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

func (s *profileService) RefreshStaleProfiles(ctx context.Context) (int, int, error) {
	now := time.Now().UTC()
	since := now.Add(-s.cfg.ObservationWindow)

	userIDs, err := s.observations.UserIDsWithMinObservations(ctx, nil, since, s.cfg.MinObservations)
	if err != nil {
		return 0, 0, fmt.Errorf("list users with observations: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, 0, nil
	}

	existing, err := s.profiles.GetByUserIDs(ctx, nil, userIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("load existing profiles: %w", err)
	}
	freshUntil := now.Add(-s.cfg.ProfileRefreshAge)
	fresh := map[uuid.UUID]bool{}
	for _, p := range existing {
		if p.UpdatedAt.After(freshUntil) {
			fresh[p.UserID] = true
		}
	}

	stale := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if !fresh[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, 0, nil
	}

	var mu sync.Mutex
	refreshed, failed := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerConcurrency)
	for _, userID := range stale {
		userID := userID
		g.Go(func() error {
			err := s.db.WithContext(gctx).Transaction(func(tx *gorm.DB) error {
				_, buildErr := s.BuildProfile(gctx, tx, userID)
				return buildErr
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// One user's failure must not abort the batch.
				s.log.Warn("Profile refresh failed", "user_id", userID, "error", err)
				failed++
				return nil
			}
			refreshed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return refreshed, failed, err
	}
	s.log.Info("Profile refresh pass complete", "refreshed", refreshed, "failed", failed, "candidates", len(stale))
	return refreshed, failed, nil
}

func (s *profileService) GetOrRefresh(ctx context.Context, userID uuid.UUID) (*types.UserClusterProfile, error) {
	profile, err := s.profiles.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil && time.Since(profile.UpdatedAt) < s.cfg.ProfileRefreshAge {
		return profile, nil
	}

	var rebuilt *types.UserClusterProfile
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var buildErr error
		rebuilt, buildErr = s.BuildProfile(ctx, tx, userID)
		return buildErr
	})
	if err != nil {
		return nil, err
	}
	if rebuilt == nil {
		// Not enough recent data to rebuild; fall back to the stale row.
		return profile, nil
	}
	return rebuilt, nil
}

// channelMeans averages each emotion channel across observations, keyed by
// channel name in types.EmotionChannels order.
func channelMeans(observations []*types.EmotionObservation) map[string]float64 {
	sums := make([]float64, len(types.EmotionChannels))
	for _, o := range observations {
		for i, v := range o.Intensities() {
			sums[i] += v
		}
	}
	out := make(map[string]float64, len(types.EmotionChannels))
	n := float64(len(observations))
	for i, ch := range types.EmotionChannels {
		if n > 0 {
			out[ch] = sums[i] / n
		}
	}
	return out
}

// DeriveHealingStage maps the chronological max-intensity trend onto the
// ordered stage enum. The thresholds are tunable policy; the contract is only
// that decreasing distress over time maps to later stages.
func DeriveHealingStage(maxima []float64) string {
	if len(maxima) == 0 {
		return types.StageEarly
	}
	half := len(maxima) / 2
	if half == 0 {
		half = 1
	}
	earlier := vectormath.Mean(maxima[:half])
	recent := vectormath.Mean(maxima[half:])
	if len(maxima) == 1 {
		recent = maxima[0]
	}

	declining := recent <= earlier-0.1
	switch {
	case recent >= 0.7:
		return types.StageEarly
	case declining && recent < 0.35:
		return types.StageGrowth
	case declining:
		return types.StageIntegration
	default:
		return types.StageProcessing
	}
}

// BuildClusterVector lays out the fixed 12-dimension vector: channel means in
// EmotionChannels order, intensity, variability, one-hot healing stage. The
// ordering is a contract; vectors from different layouts are not comparable.
func BuildClusterVector(means map[string]float64, intensity, variability float64, stage string) []float64 {
	out := make([]float64, 0, VectorDim)
	for _, ch := range types.EmotionChannels {
		out = append(out, means[ch])
	}
	out = append(out, intensity, variability)
	stageIdx := types.StageIndex(stage)
	for i := range types.HealingStages {
		if i == stageIdx {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func collectThemes(events []*types.LifeEvent) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(tag string) {
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}
	for _, e := range events {
		add(e.Category)
		if len(e.Tags) > 0 {
			var tags []string
			if err := json.Unmarshal(e.Tags, &tags); err == nil {
				for _, t := range tags {
					add(t)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// profileConfidence ramps with data volume and penalizes erratic histories.
func profileConfidence(observationCount int, variability float64) float64 {
	ramp := float64(observationCount) / 20.0
	if ramp > 1 {
		ramp = 1
	}
	return vectormath.Clamp01(0.7*ramp + 0.3*(1-vectormath.Clamp01(variability)))
}

func deriveActivityLevel(observationCount int, window time.Duration) string {
	weeks := window.Hours() / (24 * 7)
	if weeks <= 0 {
		weeks = 1
	}
	perWeek := float64(observationCount) / weeks
	switch {
	case perWeek >= 5:
		return "high"
	case perWeek >= 2:
		return "moderate"
	default:
		return "low"
	}
}

func deriveCommunicationStyle(variability float64) string {
	if variability > 0.25 {
		return "expressive"
	}
	return "measured"
}

func deriveSupportPreference(means map[string]float64) string {
	if means["joy"] < 0.2 && means["sadness"] > 0.5 {
		return "gentle_listening"
	}
	return "practical_support"
}

func deriveCopingPatterns(means map[string]float64, variability float64, maxima []float64) []string {
	patterns := []string{}
	if variability < 0.15 {
		patterns = append(patterns, "steady_routine")
	} else {
		patterns = append(patterns, "wave_riding")
	}
	if means["fear"] > 0.6 {
		patterns = append(patterns, "hypervigilance")
	}
	half := len(maxima) / 2
	if half > 0 && vectormath.Mean(maxima[half:]) < vectormath.Mean(maxima[:half]) {
		patterns = append(patterns, "active_processing")
	}
	return patterns
}

func mustMarshal(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		// Only reachable for unmarshalable types, which would be a
		// programming error.
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(raw)
}
