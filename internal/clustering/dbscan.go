package clustering

import (
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

// epsFloor keeps the neighborhood radius from collapsing to zero when many
// vectors coincide.
const epsFloor = 0.1

const epsNeighborRank = 4

// estimateEps derives the DBSCAN radius from the data: each point's distance
// to its 4th nearest neighbor, 75th percentile across points, floored.
func estimateEps(vectors [][]float64) float64 {
	n := len(vectors)
	if n < 2 {
		return epsFloor
	}
	k := epsNeighborRank
	if k > n-1 {
		k = n - 1
	}
	kth := make([]float64, 0, n)
	dists := make([]float64, 0, n-1)
	for i := 0; i < n; i++ {
		dists = dists[:0]
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dists = append(dists, vectormath.EuclideanDistance(vectors[i], vectors[j]))
		}
		kth = append(kth, kthSmallest(dists, k))
	}
	eps := vectormath.Percentile(kth, 75)
	if eps < epsFloor {
		eps = epsFloor
	}
	return eps
}

func kthSmallest(xs []float64, k int) float64 {
	// Selection over a copy; neighborhoods are small enough that a partial
	// sort buys nothing.
	tmp := make([]float64, len(xs))
	copy(tmp, xs)
	for i := 0; i < k && i < len(tmp); i++ {
		minIdx := i
		for j := i + 1; j < len(tmp); j++ {
			if tmp[j] < tmp[minIdx] {
				minIdx = j
			}
		}
		tmp[i], tmp[minIdx] = tmp[minIdx], tmp[i]
	}
	if k-1 < len(tmp) {
		return tmp[k-1]
	}
	return tmp[len(tmp)-1]
}

func dbscanMinPoints(n int) int {
	mp := n / 10
	if mp < 3 {
		mp = 3
	}
	return mp
}

// dbscan labels every vector with a dense cluster id or Noise. Standard
// region-growing DBSCAN over euclidean distance.
func dbscan(vectors [][]float64) ([]int, float64) {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n == 0 {
		return labels, epsFloor
	}

	eps := estimateEps(vectors)
	minPts := dbscanMinPoints(n)

	visited := make([]bool, n)
	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minPts {
			continue
		}

		label := next
		next++
		labels[i] = label

		// Expand the dense region; the queue grows as new core points join.
		queue := append([]int(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			p := queue[qi]
			if !visited[p] {
				visited[p] = true
				pNeighbors := regionQuery(vectors, p, eps)
				if len(pNeighbors) >= minPts {
					queue = append(queue, pNeighbors...)
				}
			}
			if labels[p] == Noise {
				labels[p] = label
			}
		}
	}
	return labels, eps
}

func regionQuery(vectors [][]float64, idx int, eps float64) []int {
	var out []int
	for j := range vectors {
		if j == idx {
			continue
		}
		if vectormath.EuclideanDistance(vectors[idx], vectors[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}
