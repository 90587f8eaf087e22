package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/solacegrove/solace-backend/internal/config"
	"github.com/solacegrove/solace-backend/internal/logger"
	"github.com/solacegrove/solace-backend/internal/repos"
	"github.com/solacegrove/solace-backend/internal/similarity"
	"github.com/solacegrove/solace-backend/internal/types"
)

// GroupMatch pairs a candidate group with the user's similarity score.
type GroupMatch struct {
	Group      *types.SharedWoundGroup `json:"group"`
	Similarity float64                 `json:"similarity"`
}

// MatchingService answers on-demand "which groups fit this user" queries
// outside the batch cycle.
type MatchingService interface {
	// FindMatchingGroups returns active groups scoring at or above the match
	// threshold, best first, capped at limit. A user without enough data for
	// a profile gets an empty result, not an error.
	FindMatchingGroups(ctx context.Context, userID uuid.UUID, limit int) ([]GroupMatch, error)
}

type matchingService struct {
	log        *logger.Logger
	cfg        config.Batch
	groups     repos.GroupRepo
	profileSvc ProfileService
}

func NewMatchingService(
	baseLog *logger.Logger,
	cfg config.Batch,
	groups repos.GroupRepo,
	profileSvc ProfileService,
) MatchingService {
	return &matchingService{
		log:        baseLog.With("service", "MatchingService"),
		cfg:        cfg,
		groups:     groups,
		profileSvc: profileSvc,
	}
}

func (s *matchingService) FindMatchingGroups(ctx context.Context, userID uuid.UUID, limit int) ([]GroupMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	profile, err := s.profileSvc.GetOrRefresh(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}
	if profile == nil {
		s.log.Debug("No profile available for matching", "user_id", userID)
		return []GroupMatch{}, nil
	}

	active, err := s.groups.GetActive(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load active groups: %w", err)
	}

	matches := make([]GroupMatch, 0, len(active))
	for _, g := range active {
		if g.MemberCount >= g.MaxMembers {
			continue
		}
		score := similarity.GroupSimilarity(profile, g)
		if score < s.cfg.MatchThreshold {
			continue
		}
		matches = append(matches, GroupMatch{Group: g, Similarity: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Group.ID.String() < matches[j].Group.ID.String()
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
