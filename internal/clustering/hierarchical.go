package clustering

import (
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

// chooseWardClusterCount picks the agglomerative target: min(8, max(3, N/5)),
// bounded by the number of points.
func chooseWardClusterCount(n int) int {
	k := n / 5
	if k < 3 {
		k = 3
	}
	if k > 8 {
		k = 8
	}
	if k > n {
		k = n
	}
	return k
}

type wardCluster struct {
	indices  []int
	centroid []float64
	size     int
}

// wardAgglomerative merges clusters bottom-up, always taking the pair with
// the smallest Ward variance increase, until k clusters remain. Labels are
// dense 0..k-1.
func wardAgglomerative(vectors [][]float64, k int) []int {
	n := len(vectors)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	clusters := make([]*wardCluster, n)
	for i := range vectors {
		clusters[i] = &wardCluster{
			indices:  []int{i},
			centroid: append([]float64(nil), vectors[i]...),
			size:     1,
		}
	}

	for len(clusters) > k {
		bestA, bestB := -1, -1
		bestCost := 0.0
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				cost := wardCost(clusters[i], clusters[j])
				if bestA < 0 || cost < bestCost {
					bestA, bestB, bestCost = i, j, cost
				}
			}
		}
		merged := mergeWard(clusters[bestA], clusters[bestB])
		next := make([]*wardCluster, 0, len(clusters)-1)
		for idx, c := range clusters {
			if idx == bestA || idx == bestB {
				continue
			}
			next = append(next, c)
		}
		clusters = append(next, merged)
	}

	for label, c := range clusters {
		for _, idx := range c.indices {
			labels[idx] = label
		}
	}
	return labels
}

// wardCost is the variance increase of merging a and b:
// (|a||b| / (|a|+|b|)) * ||centroid_a - centroid_b||^2.
func wardCost(a, b *wardCluster) float64 {
	d := vectormath.EuclideanDistance(a.centroid, b.centroid)
	return float64(a.size) * float64(b.size) / float64(a.size+b.size) * d * d
}

func mergeWard(a, b *wardCluster) *wardCluster {
	total := a.size + b.size
	centroid := make([]float64, len(a.centroid))
	for i := range centroid {
		centroid[i] = (a.centroid[i]*float64(a.size) + b.centroid[i]*float64(b.size)) / float64(total)
	}
	indices := make([]int, 0, total)
	indices = append(indices, a.indices...)
	indices = append(indices, b.indices...)
	return &wardCluster{indices: indices, centroid: centroid, size: total}
}
