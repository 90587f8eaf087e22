// Package vectormath holds the small fixed-dimension vector helpers shared by
// the similarity and clustering engines. Cluster vectors are 12-dimensional,
// so everything here is plain loops over float64 slices.
package vectormath

import (
	"math"
	"sort"
)

// CosineSimilarity over the overlapping prefix of a and b. Returns 0 when
// either vector is empty or has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EuclideanDistance between equal-length vectors. Mismatched lengths compare
// over the shared prefix.
func EuclideanDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MeanVector averages vectors of the common dimension; vectors of a different
// length are skipped. Returns false when nothing usable was given.
func MeanVector(vs [][]float64) ([]float64, bool) {
	if len(vs) == 0 {
		return nil, false
	}
	var dim int
	for _, v := range vs {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil, false
	}
	sum := make([]float64, dim)
	n := 0
	for _, v := range vs {
		if len(v) != dim {
			continue
		}
		for i := 0; i < dim; i++ {
			sum[i] += v[i]
		}
		n++
	}
	if n == 0 {
		return nil, false
	}
	out := make([]float64, dim)
	for i := 0; i < dim; i++ {
		out[i] = sum[i] / float64(n)
	}
	return out, true
}

// NormalizeUnit returns v scaled to unit length, or v unchanged when its norm
// is zero.
func NormalizeUnit(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum <= 0 {
		return v
	}
	den := 1.0 / math.Sqrt(sum)
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * den
	}
	return out
}

func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Mean of a scalar sample; 0 for an empty sample.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev is the population standard deviation; 0 for fewer than 2 samples.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// Percentile returns the p-th percentile (0..100) of xs using linear
// interpolation between closest ranks. xs is not modified.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
