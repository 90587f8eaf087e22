package types

// EmotionChannels fixes the order of the six emotion intensity channels
// everywhere a vector is built or read. Changing this order invalidates every
// persisted cluster_vector.
var EmotionChannels = []string{"sadness", "anger", "fear", "joy", "surprise", "disgust"}

// Healing stages, ordered from most acute to most recovered. Adjacency in
// this list is meaningful to the similarity engine.
const (
	StageEarly       = "early"
	StageProcessing  = "processing"
	StageIntegration = "integration"
	StageGrowth      = "growth"
)

var HealingStages = []string{StageEarly, StageProcessing, StageIntegration, StageGrowth}

// StageIndex returns the position of a healing stage in the ordered enum,
// or -1 for an unknown stage.
func StageIndex(stage string) int {
	for i, s := range HealingStages {
		if s == stage {
			return i
		}
	}
	return -1
}

const (
	CircleStatusActive = "active"
	CircleStatusPaused = "paused"
	CircleStatusClosed = "closed"

	MembershipStatusActive = "active"
	MembershipStatusLeft   = "left"
)
