package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"autodash-backend/internal/analysis"
	"autodash-backend/internal/dataset"
)

const (
	// kmeansSeed fixes the centroid initialization so segmentation is
	// reproducible run to run.
	kmeansSeed = 42
	maxIter    = 100
	// SegmentColumn is the name of the column segmentation adds.
	SegmentColumn = "Segment"
)

// Segment standardizes the numeric columns, runs K-Means and appends a
// categorical Segment column to the table. It returns the cluster labels.
func Segment(t *dataset.Table, k int) ([]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 segments, got %d", k)
	}
	points := standardizedPoints(t)
	if len(points) == 0 {
		return nil, fmt.Errorf("no numeric columns to segment on")
	}
	if len(points) < k {
		return nil, fmt.Errorf("cannot split %d rows into %d segments", len(points), k)
	}

	labels, _ := kmeans(points, k)

	col := dataset.Column{
		Name:    SegmentColumn,
		Type:    dataset.Categorical,
		Labels:  make([]string, len(labels)),
		Missing: make([]bool, len(labels)),
	}
	for i, l := range labels {
		col.Labels[i] = fmt.Sprintf("Segment %d", l)
	}
	if _, exists := t.Column(SegmentColumn); exists {
		// Re-segmenting replaces the previous assignment.
		for ci := range t.Columns {
			if t.Columns[ci].Name == SegmentColumn {
				t.Columns[ci] = col
			}
		}
		return labels, nil
	}
	if err := t.AddColumn(col); err != nil {
		return nil, err
	}
	return labels, nil
}

// Diagnostics holds elbow and silhouette curves for choosing k.
type Diagnostics struct {
	WCSS         map[int]float64 `json:"wcss"`
	Silhouette   map[int]float64 `json:"silhouette"`
	RecommendedK int             `json:"recommended_k"`
}

// Diagnose computes within-cluster sum of squares for k=1..maxK and the
// mean silhouette score for k=2..maxK, recommending the k with the best
// silhouette.
func Diagnose(t *dataset.Table, maxK int) (Diagnostics, error) {
	points := standardizedPoints(t)
	if len(points) == 0 {
		return Diagnostics{}, fmt.Errorf("no numeric columns to cluster on")
	}
	if maxK < 2 {
		maxK = 2
	}
	if maxK > len(points)-1 {
		maxK = len(points) - 1
	}
	if maxK < 2 {
		return Diagnostics{}, fmt.Errorf("not enough rows for clustering diagnostics")
	}

	diag := Diagnostics{
		WCSS:       make(map[int]float64),
		Silhouette: make(map[int]float64),
	}

	_, inertia := kmeans(points, 1)
	diag.WCSS[1] = inertia

	bestScore := -1.0
	for k := 2; k <= maxK; k++ {
		labels, inertia := kmeans(points, k)
		diag.WCSS[k] = inertia
		score := meanSilhouette(points, labels, k)
		diag.Silhouette[k] = score
		if score > bestScore {
			bestScore = score
			diag.RecommendedK = k
		}
	}
	return diag, nil
}

// standardizedPoints builds z-scored row vectors over the numeric columns.
func standardizedPoints(t *dataset.Table) [][]float64 {
	var cols []*dataset.Column
	for i := range t.Columns {
		if t.Columns[i].Type == dataset.Numeric {
			cols = append(cols, &t.Columns[i])
		}
	}
	if len(cols) == 0 || t.NumRows() == 0 {
		return nil
	}

	means := make([]float64, len(cols))
	stds := make([]float64, len(cols))
	for i, c := range cols {
		means[i] = analysis.Mean(c.Numbers)
		stds[i] = analysis.StdDev(c.Numbers)
		if stds[i] == 0 {
			stds[i] = 1
		}
	}

	points := make([][]float64, t.NumRows())
	for ri := range points {
		vec := make([]float64, len(cols))
		for i, c := range cols {
			vec[i] = (c.Numbers[ri] - means[i]) / stds[i]
		}
		points[ri] = vec
	}
	return points
}

// kmeans runs Lloyd's algorithm with seeded k-means++ initialization and
// returns the labels and the final inertia.
func kmeans(points [][]float64, k int) ([]int, float64) {
	rng := rand.New(rand.NewSource(kmeansSeed))
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for pi, p := range points {
			best := 0
			bestDist := distSq(p, centroids[0])
			for ci := 1; ci < k; ci++ {
				if d := distSq(p, centroids[ci]); d < bestDist {
					best = ci
					bestDist = d
				}
			}
			if labels[pi] != best {
				labels[pi] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids; an emptied cluster keeps its position.
		dims := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for ci := range sums {
			sums[ci] = make([]float64, dims)
		}
		for pi, p := range points {
			ci := labels[pi]
			counts[ci]++
			for d, v := range p {
				sums[ci][d] += v
			}
		}
		for ci := 0; ci < k; ci++ {
			if counts[ci] == 0 {
				continue
			}
			for d := range sums[ci] {
				centroids[ci][d] = sums[ci][d] / float64(counts[ci])
			}
		}
	}

	inertia := 0.0
	for pi, p := range points {
		inertia += distSq(p, centroids[labels[pi]])
	}
	return labels, inertia
}

// seedCentroids picks initial centroids k-means++ style: the first at
// random, each next with probability proportional to squared distance from
// the nearest chosen centroid.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := append([]float64(nil), points[rng.Intn(len(points))]...)
	centroids = append(centroids, first)

	for len(centroids) < k {
		dists := make([]float64, len(points))
		total := 0.0
		for pi, p := range points {
			best := math.Inf(1)
			for _, c := range centroids {
				if d := distSq(p, c); d < best {
					best = d
				}
			}
			dists[pi] = best
			total += best
		}
		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, append([]float64(nil), points[rng.Intn(len(points))]...))
			continue
		}
		target := rng.Float64() * total
		acc := 0.0
		chosen := len(points) - 1
		for pi, d := range dists {
			acc += d
			if acc >= target {
				chosen = pi
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), points[chosen]...))
	}
	return centroids
}

// meanSilhouette averages the silhouette coefficient over all points.
func meanSilhouette(points [][]float64, labels []int, k int) float64 {
	n := len(points)
	if n == 0 || k < 2 {
		return 0
	}

	total := 0.0
	counted := 0
	for i := 0; i < n; i++ {
		intra, intraN := 0.0, 0
		inter := make([]float64, k)
		interN := make([]int, k)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := math.Sqrt(distSq(points[i], points[j]))
			if labels[j] == labels[i] {
				intra += d
				intraN++
			} else {
				inter[labels[j]] += d
				interN[labels[j]]++
			}
		}
		if intraN == 0 {
			continue
		}
		a := intra / float64(intraN)
		b := math.Inf(1)
		for ci := 0; ci < k; ci++ {
			if ci == labels[i] || interN[ci] == 0 {
				continue
			}
			if avg := inter[ci] / float64(interN[ci]); avg < b {
				b = avg
			}
		}
		if math.IsInf(b, 1) || math.Max(a, b) == 0 {
			continue
		}
		total += (b - a) / math.Max(a, b)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

func distSq(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
