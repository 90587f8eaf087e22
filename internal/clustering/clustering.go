// Package clustering partitions cluster vectors into candidate cohorts. It
// supports density-based (DBSCAN), agglomerative (Ward) and centroid-based
// (k-means) partitioning, each with automatic parameter estimation, and
// reports silhouette and Calinski-Harabasz scores for diagnostics.
package clustering

import (
	"fmt"
	"sort"

	"github.com/solacegrove/solace-backend/internal/vectormath"
)

type Method string

const (
	MethodDBSCAN       Method = "dbscan"
	MethodHierarchical Method = "hierarchical"
	MethodKMeans       Method = "kmeans"
)

// Noise is the label assigned to points no cluster claimed.
const Noise = -1

type Options struct {
	Method Method
	// MinGroupSize marks clusters below this size invalid for group
	// creation. Their members stay unassigned for the next run.
	MinGroupSize int
	// KMeansK forces the cluster count for MethodKMeans; 0 selects it by
	// the elbow heuristic.
	KMeansK int
}

type Cluster struct {
	Label    int
	Indices  []int
	Centroid []float64
	Valid    bool
}

type Result struct {
	// Labels has one entry per input vector; Noise means unassigned.
	Labels     []int
	Clusters   []Cluster
	NoiseCount int

	// Diagnostics only; never gates correctness.
	Silhouette       float64
	CalinskiHarabasz float64

	// Eps is the estimated neighborhood radius (DBSCAN only).
	Eps float64
}

// ValidClusters returns only the clusters large enough for group creation.
func (r *Result) ValidClusters() []Cluster {
	out := make([]Cluster, 0, len(r.Clusters))
	for _, c := range r.Clusters {
		if c.Valid {
			out = append(out, c)
		}
	}
	return out
}

// Run partitions vectors with the selected method. All vectors must share one
// dimension; an empty input yields an empty result rather than an error.
func Run(vectors [][]float64, opts Options) (*Result, error) {
	if len(vectors) == 0 {
		return &Result{}, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("clustering: zero-dimension vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("clustering: vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	if opts.MinGroupSize < 1 {
		opts.MinGroupSize = 1
	}

	var labels []int
	var eps float64
	switch opts.Method {
	case MethodDBSCAN, "":
		labels, eps = dbscan(vectors)
	case MethodHierarchical:
		labels = wardAgglomerative(vectors, chooseWardClusterCount(len(vectors)))
	case MethodKMeans:
		k := opts.KMeansK
		if k <= 0 {
			k = chooseKElbow(vectors)
		}
		labels = kmeansLabels(vectors, k)
	default:
		return nil, fmt.Errorf("clustering: unknown method %q", opts.Method)
	}

	res := assemble(vectors, labels, opts.MinGroupSize)
	res.Eps = eps
	return res, nil
}

func assemble(vectors [][]float64, labels []int, minGroupSize int) *Result {
	byLabel := map[int][]int{}
	noise := 0
	for i, l := range labels {
		if l == Noise {
			noise++
			continue
		}
		byLabel[l] = append(byLabel[l], i)
	}

	labelOrder := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labelOrder = append(labelOrder, l)
	}
	sort.Ints(labelOrder)

	clusters := make([]Cluster, 0, len(byLabel))
	for _, label := range labelOrder {
		indices := byLabel[label]
		members := make([][]float64, 0, len(indices))
		for _, idx := range indices {
			members = append(members, vectors[idx])
		}
		centroid, _ := vectormath.MeanVector(members)
		clusters = append(clusters, Cluster{
			Label:    label,
			Indices:  indices,
			Centroid: centroid,
			Valid:    len(indices) >= minGroupSize,
		})
	}

	return &Result{
		Labels:           labels,
		Clusters:         clusters,
		NoiseCount:       noise,
		Silhouette:       silhouette(vectors, labels),
		CalinskiHarabasz: calinskiHarabasz(vectors, labels),
	}
}
