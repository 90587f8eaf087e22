// Package similarity scores how close two emotional profiles are, and how
// well a user fits an existing group. All scores are bounded [0,1].
package similarity

import (
	"math"

	"github.com/solacegrove/solace-backend/internal/types"
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

// EmotionWeights biases the per-channel cosine comparison. Trauma-adjacent
// channels dominate the grouping decision; joy contributes least. These are
// documented policy constants and must stay stable within a deployment so
// that scores remain comparable across runs.
var EmotionWeights = map[string]float64{
	"sadness":  1.2,
	"anger":    1.1,
	"fear":     1.3,
	"joy":      0.6,
	"surprise": 0.8,
	"disgust":  1.0,
}

// Blend weights for GroupSimilarity. The 0.1 base keeps every score away
// from a hard zero so ordering stays meaningful for sparse profiles.
const (
	emotionWeight = 0.4
	themeWeight   = 0.3
	stageWeight   = 0.2
	baseWeight    = 0.1
)

// EmotionSimilarity is the weighted cosine similarity of two emotion-intensity
// maps, evaluated over the fixed channel order and clamped to >= 0.
func EmotionSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	va := make([]float64, len(types.EmotionChannels))
	vb := make([]float64, len(types.EmotionChannels))
	for i, ch := range types.EmotionChannels {
		w := EmotionWeights[ch]
		va[i] = a[ch] * w
		vb[i] = b[ch] * w
	}
	s := vectormath.CosineSimilarity(va, vb)
	if s < 0 {
		return 0
	}
	return s
}

// ThemeSimilarity is the Jaccard index of two theme tag sets; 0 when either
// set is empty.
func ThemeSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	inter := 0
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		if setB[t] {
			continue
		}
		setB[t] = true
		if setA[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// StageAdjacency is 1 for the same healing stage, 0.5 for adjacent stages in
// the ordered enum, otherwise 0. Unknown stages never match.
func StageAdjacency(a, b string) float64 {
	ia := types.StageIndex(a)
	ib := types.StageIndex(b)
	if ia < 0 || ib < 0 {
		return 0
	}
	switch d := int(math.Abs(float64(ia - ib))); d {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 0
	}
}

// GroupSimilarity blends the three component scores for a user against a
// group summary: 0.4 emotion + 0.3 theme + 0.2 stage + 0.1 base.
func GroupSimilarity(p *types.UserClusterProfile, g *types.SharedWoundGroup) float64 {
	if p == nil || g == nil {
		return 0
	}
	score := emotionWeight*EmotionSimilarity(p.Emotions(), g.Pattern()) +
		themeWeight*ThemeSimilarity(p.Themes(), g.Themes()) +
		stageWeight*StageAdjacency(p.HealingStage, g.HealingStage) +
		baseWeight
	return vectormath.Clamp01(score)
}

// GroupConfidence is the mean pairwise cosine similarity across raw cluster
// vectors, plus a small size bonus capped at +0.1. Fewer than two usable
// vectors yield 0.
func GroupConfidence(vectors [][]float64) float64 {
	usable := make([][]float64, 0, len(vectors))
	for _, v := range vectors {
		if len(v) > 0 {
			usable = append(usable, v)
		}
	}
	if len(usable) < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			sum += vectormath.CosineSimilarity(usable[i], usable[j])
			pairs++
		}
	}
	mean := sum / float64(pairs)
	bonus := 0.02 * float64(len(usable)-2)
	if bonus > 0.1 {
		bonus = 0.1
	}
	return vectormath.Clamp01(mean + bonus)
}
