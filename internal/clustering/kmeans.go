package clustering

import (
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

const kmeansMaxIterations = 25

// chooseKElbow scans k=2..min(10, N/3) and picks the elbow of the inertia
// curve (largest second difference). Falls back to 2 when the scan range is
// degenerate.
func chooseKElbow(vectors [][]float64) int {
	n := len(vectors)
	kMax := n / 3
	if kMax > 10 {
		kMax = 10
	}
	if kMax < 2 {
		return minInt(2, n)
	}

	// One extra run on each side so the second difference is defined for
	// every candidate in 2..kMax.
	inertias := map[int]float64{}
	for k := 1; k <= kMax+1; k++ {
		_, inertia := kmeansRun(vectors, k)
		inertias[k] = inertia
	}

	bestK := 2
	bestDrop := -1.0
	for k := 2; k <= kMax; k++ {
		// Second difference: how sharply the improvement flattens after k.
		drop := (inertias[k-1] - inertias[k]) - (inertias[k] - inertias[k+1])
		if drop > bestDrop {
			bestDrop = drop
			bestK = k
		}
	}
	return bestK
}

func kmeansLabels(vectors [][]float64, k int) []int {
	labels, _ := kmeansRun(vectors, k)
	return labels
}

// kmeansRun is deterministic: seeding starts at the first vector and then
// repeatedly takes the point farthest from every chosen centroid, so
// identical inputs always produce identical partitions.
func kmeansRun(vectors [][]float64, k int) ([]int, float64) {
	n := len(vectors)
	labels := make([]int, n)
	if n == 0 {
		return labels, 0
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), vectors[0]...))
	for len(centroids) < k {
		bestIdx := 0
		bestDist := -1.0
		for i := range vectors {
			d := nearestCentroidDistance(vectors[i], centroids)
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		centroids = append(centroids, append([]float64(nil), vectors[bestIdx]...))
	}

	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := 0
			bestDist := vectormath.EuclideanDistance(v, centroids[0])
			for c := 1; c < k; c++ {
				if d := vectormath.EuclideanDistance(v, centroids[c]); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}

		for c := 0; c < k; c++ {
			members := make([][]float64, 0, n)
			for i, l := range labels {
				if l == c {
					members = append(members, vectors[i])
				}
			}
			if mean, ok := vectormath.MeanVector(members); ok {
				centroids[c] = mean
			}
		}

		if !changed {
			break
		}
	}

	labels = compactLabels(labels, k)

	// Inertia against final centroids of the compacted labels.
	var inertia float64
	final := map[int][][]float64{}
	for i, l := range labels {
		final[l] = append(final[l], vectors[i])
	}
	centers := map[int][]float64{}
	for l, members := range final {
		if mean, ok := vectormath.MeanVector(members); ok {
			centers[l] = mean
		}
	}
	for i, l := range labels {
		d := vectormath.EuclideanDistance(vectors[i], centers[l])
		inertia += d * d
	}
	return labels, inertia
}

// compactLabels renumbers labels densely, dropping empty clusters.
func compactLabels(labels []int, k int) []int {
	remap := make([]int, k)
	for i := range remap {
		remap[i] = -1
	}
	next := 0
	out := make([]int, len(labels))
	for i, l := range labels {
		if l < 0 || l >= k {
			l = 0
		}
		if remap[l] == -1 {
			remap[l] = next
			next++
		}
		out[i] = remap[l]
	}
	return out
}

func nearestCentroidDistance(v []float64, centroids [][]float64) float64 {
	best := -1.0
	for _, c := range centroids {
		d := vectormath.EuclideanDistance(v, c)
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
