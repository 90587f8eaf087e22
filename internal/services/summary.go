package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/solacegrove/solace-backend/internal/similarity"
	"github.com/solacegrove/solace-backend/internal/types"
)

// topEmotionCount bounds the emotional pattern stored on a group.
const topEmotionCount = 5

// groupSummary is the aggregate face of a member cohort: averaged top
// emotions, themes shared by enough members, and the plurality healing stage.
type groupSummary struct {
	Pattern map[string]float64
	Themes  []string
	Stage   string
}

func summarizeProfiles(profiles []*types.UserClusterProfile, themeFrequency float64) groupSummary {
	channelSums := map[string]float64{}
	themeCounts := map[string]int{}
	stageCounts := map[string]int{}

	for _, p := range profiles {
		for ch, v := range p.Emotions() {
			channelSums[ch] += v
		}
		for _, t := range p.Themes() {
			themeCounts[t]++
		}
		stageCounts[p.HealingStage]++
	}

	n := float64(len(profiles))
	pattern := map[string]float64{}
	if n > 0 {
		type chMean struct {
			ch   string
			mean float64
		}
		means := make([]chMean, 0, len(channelSums))
		for ch, sum := range channelSums {
			means = append(means, chMean{ch: ch, mean: sum / n})
		}
		sort.Slice(means, func(i, j int) bool {
			if means[i].mean != means[j].mean {
				return means[i].mean > means[j].mean
			}
			return means[i].ch < means[j].ch
		})
		for i := 0; i < len(means) && i < topEmotionCount; i++ {
			pattern[means[i].ch] = means[i].mean
		}
	}

	themes := []string{}
	if len(profiles) > 0 {
		minCount := int(themeFrequency * float64(len(profiles)))
		if minCount < 1 {
			minCount = 1
		}
		for t, c := range themeCounts {
			if c >= minCount {
				themes = append(themes, t)
			}
		}
		sort.Strings(themes)
	}

	stage := types.StageEarly
	best := -1
	// Ties resolve to the earlier stage so new groups never overstate
	// recovery.
	for _, s := range types.HealingStages {
		if stageCounts[s] > best {
			best = stageCounts[s]
			stage = s
		}
	}

	return groupSummary{Pattern: pattern, Themes: themes, Stage: stage}
}

// clusterContentID hashes the defining characteristics of a cohort so that
// re-running creation over an unchanged population yields the same id.
func clusterContentID(s groupSummary) string {
	parts := make([]string, 0, 2+len(s.Pattern)+len(s.Themes))
	parts = append(parts, "stage:"+s.Stage)

	channels := make([]string, 0, len(s.Pattern))
	for ch := range s.Pattern {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		parts = append(parts, fmt.Sprintf("emotion:%s=%.2f", ch, s.Pattern[ch]))
	}
	for _, t := range s.Themes {
		parts = append(parts, "theme:"+t)
	}

	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// groupName builds a readable handle from the summary. Names are labels, not
// identifiers; collisions are acceptable.
func groupName(s groupSummary) string {
	if len(s.Themes) > 0 {
		return fmt.Sprintf("%s Support (%s)", titleize(s.Themes[0]), s.Stage)
	}
	top := ""
	topVal := -1.0
	for ch, v := range s.Pattern {
		if v > topVal || (v == topVal && ch < top) {
			top, topVal = ch, v
		}
	}
	if top == "" {
		return fmt.Sprintf("Shared Path (%s)", s.Stage)
	}
	return fmt.Sprintf("Working Through %s (%s)", titleize(top), s.Stage)
}

func groupDescription(s groupSummary) string {
	if len(s.Themes) == 0 {
		return "A peer circle of people moving through similar emotional terrain."
	}
	return fmt.Sprintf("A peer circle for people navigating %s together.", strings.Join(s.Themes, ", "))
}

func titleize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// groupSimilarityBetween scores two group summaries with the same blend used
// for user-to-group matching; it drives merge decisions.
func groupSimilarityBetween(a, b *types.SharedWoundGroup) float64 {
	score := 0.4*similarity.EmotionSimilarity(a.Pattern(), b.Pattern()) +
		0.3*similarity.ThemeSimilarity(a.Themes(), b.Themes()) +
		0.2*similarity.StageAdjacency(a.HealingStage, b.HealingStage) +
		0.1
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// vectorsOf extracts usable cluster vectors, keeping index alignment with the
// returned profiles.
func vectorsOf(profiles []*types.UserClusterProfile) ([][]float64, []*types.UserClusterProfile) {
	vectors := make([][]float64, 0, len(profiles))
	kept := make([]*types.UserClusterProfile, 0, len(profiles))
	for _, p := range profiles {
		v, ok := p.Vector()
		if !ok || len(v) != VectorDim {
			continue
		}
		vectors = append(vectors, v)
		kept = append(kept, p)
	}
	return vectors, kept
}
