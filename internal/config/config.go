package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/utils"
)

// Batch holds every tunable of the grouping pipeline. Services receive it
// explicitly at construction; nothing reads these values from package state.
//
// The numeric defaults are operational policy, not calibrated constants.
type Batch struct {
	MinGroupSize        int           `yaml:"min_group_size"`
	MaxGroupSize        int           `yaml:"max_group_size"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	CohesionThreshold   float64       `yaml:"cohesion_threshold"`
	MergeThreshold      float64       `yaml:"merge_threshold"`
	ThemeFrequency      float64       `yaml:"theme_frequency"`
	MatchThreshold      float64       `yaml:"match_threshold"`
	ReviewInterval      time.Duration `yaml:"review_interval"`
	ProfileRefreshAge   time.Duration `yaml:"profile_refresh_age"`
	ObservationWindow   time.Duration `yaml:"observation_window"`
	MinObservations     int           `yaml:"min_observations"`
	CircleTargetSize    int           `yaml:"circle_target_size"`
	CircleCapacity      int           `yaml:"circle_capacity"`
	ClusteringMethod    string        `yaml:"clustering_method"`
	WorkerConcurrency   int           `yaml:"worker_concurrency"`
	RunLockTTL          time.Duration `yaml:"run_lock_ttl"`
}

func DefaultBatch() Batch {
	return Batch{
		MinGroupSize:        5,
		MaxGroupSize:        50,
		ConfidenceThreshold: 0.6,
		CohesionThreshold:   0.4,
		MergeThreshold:      0.85,
		ThemeFrequency:      0.3,
		MatchThreshold:      0.5,
		ReviewInterval:      7 * 24 * time.Hour,
		ProfileRefreshAge:   7 * 24 * time.Hour,
		ObservationWindow:   30 * 24 * time.Hour,
		MinObservations:     5,
		CircleTargetSize:    7,
		CircleCapacity:      8,
		ClusteringMethod:    "dbscan",
		WorkerConcurrency:   4,
		RunLockTTL:          30 * time.Minute,
	}
}

// LoadBatch builds the effective config: defaults, then the YAML file named
// by GROUPING_CONFIG (if any), then individual env overrides.
func LoadBatch(log *logger.Logger) (Batch, error) {
	cfg := DefaultBatch()

	if path := utils.GetEnv("GROUPING_CONFIG", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read grouping config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse grouping config %s: %w", path, err)
		}
	}

	cfg.MinGroupSize = utils.GetEnvAsInt("GROUPING_MIN_GROUP_SIZE", cfg.MinGroupSize, log)
	cfg.MaxGroupSize = utils.GetEnvAsInt("GROUPING_MAX_GROUP_SIZE", cfg.MaxGroupSize, log)
	cfg.ConfidenceThreshold = utils.GetEnvAsFloat("GROUPING_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold, log)
	cfg.CohesionThreshold = utils.GetEnvAsFloat("GROUPING_COHESION_THRESHOLD", cfg.CohesionThreshold, log)
	cfg.MergeThreshold = utils.GetEnvAsFloat("GROUPING_MERGE_THRESHOLD", cfg.MergeThreshold, log)
	cfg.ThemeFrequency = utils.GetEnvAsFloat("GROUPING_THEME_FREQUENCY", cfg.ThemeFrequency, log)
	cfg.MatchThreshold = utils.GetEnvAsFloat("GROUPING_MATCH_THRESHOLD", cfg.MatchThreshold, log)
	cfg.ReviewInterval = utils.GetEnvAsDuration("GROUPING_REVIEW_INTERVAL", cfg.ReviewInterval, log)
	cfg.ProfileRefreshAge = utils.GetEnvAsDuration("GROUPING_PROFILE_REFRESH_AGE", cfg.ProfileRefreshAge, log)
	cfg.ObservationWindow = utils.GetEnvAsDuration("GROUPING_OBSERVATION_WINDOW", cfg.ObservationWindow, log)
	cfg.MinObservations = utils.GetEnvAsInt("GROUPING_MIN_OBSERVATIONS", cfg.MinObservations, log)
	cfg.CircleTargetSize = utils.GetEnvAsInt("GROUPING_CIRCLE_TARGET_SIZE", cfg.CircleTargetSize, log)
	cfg.CircleCapacity = utils.GetEnvAsInt("GROUPING_CIRCLE_CAPACITY", cfg.CircleCapacity, log)
	cfg.ClusteringMethod = utils.GetEnv("GROUPING_CLUSTERING_METHOD", cfg.ClusteringMethod, log)
	cfg.WorkerConcurrency = utils.GetEnvAsInt("GROUPING_WORKER_CONCURRENCY", cfg.WorkerConcurrency, log)
	cfg.RunLockTTL = utils.GetEnvAsDuration("GROUPING_RUN_LOCK_TTL", cfg.RunLockTTL, log)

	return cfg, cfg.Validate()
}

func (b Batch) Validate() error {
	if b.MinGroupSize < 2 {
		return fmt.Errorf("min_group_size must be >= 2, got %d", b.MinGroupSize)
	}
	if b.MaxGroupSize <= b.MinGroupSize {
		return fmt.Errorf("max_group_size %d must exceed min_group_size %d", b.MaxGroupSize, b.MinGroupSize)
	}
	if b.CircleTargetSize < 2 || b.CircleCapacity < b.CircleTargetSize {
		return fmt.Errorf("invalid circle sizing: target %d capacity %d", b.CircleTargetSize, b.CircleCapacity)
	}
	if b.WorkerConcurrency < 1 {
		return fmt.Errorf("worker_concurrency must be >= 1, got %d", b.WorkerConcurrency)
	}
	switch b.ClusteringMethod {
	case "dbscan", "hierarchical", "kmeans":
	default:
		return fmt.Errorf("unknown clustering_method %q", b.ClusteringMethod)
	}
	return nil
}
