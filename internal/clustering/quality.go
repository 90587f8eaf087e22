package clustering

import (
	"github.com/solacegrove/solace-backend/internal/vectormath"
)

// silhouette is the mean silhouette coefficient over all labeled points.
// Noise points and members of singleton clusters are excluded. Returns 0 when
// fewer than two clusters exist.
func silhouette(vectors [][]float64, labels []int) float64 {
	byLabel := map[int][]int{}
	for i, l := range labels {
		if l == Noise {
			continue
		}
		byLabel[l] = append(byLabel[l], i)
	}
	if len(byLabel) < 2 {
		return 0
	}

	var sum float64
	count := 0
	for label, indices := range byLabel {
		if len(indices) < 2 {
			continue
		}
		for _, i := range indices {
			a := meanDistanceTo(vectors, i, indices)

			b := -1.0
			for other, otherIndices := range byLabel {
				if other == label {
					continue
				}
				d := meanDistanceTo(vectors, i, otherIndices)
				if b < 0 || d < b {
					b = d
				}
			}
			if b < 0 {
				continue
			}

			max := a
			if b > max {
				max = b
			}
			if max > 0 {
				sum += (b - a) / max
			}
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// meanDistanceTo averages distance from vectors[i] to the given indices,
// skipping i itself.
func meanDistanceTo(vectors [][]float64, i int, indices []int) float64 {
	var sum float64
	n := 0
	for _, j := range indices {
		if j == i {
			continue
		}
		sum += vectormath.EuclideanDistance(vectors[i], vectors[j])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// calinskiHarabasz is the ratio of between-cluster to within-cluster
// dispersion. Higher means better separation. Returns 0 when undefined.
func calinskiHarabasz(vectors [][]float64, labels []int) float64 {
	byLabel := map[int][][]float64{}
	labeled := make([][]float64, 0, len(vectors))
	for i, l := range labels {
		if l == Noise {
			continue
		}
		byLabel[l] = append(byLabel[l], vectors[i])
		labeled = append(labeled, vectors[i])
	}
	k := len(byLabel)
	n := len(labeled)
	if k < 2 || n <= k {
		return 0
	}

	overall, ok := vectormath.MeanVector(labeled)
	if !ok {
		return 0
	}

	var between, within float64
	for _, members := range byLabel {
		centroid, ok := vectormath.MeanVector(members)
		if !ok {
			continue
		}
		d := vectormath.EuclideanDistance(centroid, overall)
		between += float64(len(members)) * d * d
		for _, v := range members {
			dv := vectormath.EuclideanDistance(v, centroid)
			within += dv * dv
		}
	}
	if within <= 0 {
		return 0
	}
	return (between / float64(k-1)) / (within / float64(n-k))
}
