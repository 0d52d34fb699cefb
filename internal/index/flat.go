package index

import (
	"fmt"
	"math"
	"sort"
)

// Metric selects how query and chunk vectors are compared. Cosine and
// inner product store L2-normalized vectors and rank higher scores first;
// euclidean ranks lower distances first.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricEuclidean    Metric = "euclidean"
	MetricInnerProduct Metric = "ip"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean, MetricInnerProduct:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

// Hit is one search result: a chunk id and its score under the index metric.
type Hit struct {
	ChunkID int64
	Score   float64
}

// Flat is a brute-force index over the full vector set. Every search
// scores every stored vector.
type Flat struct {
	metric  Metric
	dim     int
	ids     []int64
	vectors [][]float32
}

func NewFlat(metric Metric, dim int) (*Flat, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if dim < 0 {
		return nil, fmt.Errorf("negative vector dimension %d", dim)
	}
	return &Flat{metric: metric, dim: dim}, nil
}

func (f *Flat) Metric() Metric { return f.metric }
func (f *Flat) Dim() int       { return f.dim }
func (f *Flat) Len() int       { return len(f.ids) }

// Add stores one vector. Under cosine or inner product the stored copy is
// L2-normalized so the dot product is the similarity score.
func (f *Flat) Add(chunkID int64, vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("vector for chunk %d has dim %d, index expects %d", chunkID, len(vec), f.dim)
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	if f.metric != MetricEuclidean {
		normalize(stored)
	}
	f.ids = append(f.ids, chunkID)
	f.vectors = append(f.vectors, stored)
	return nil
}

// Search returns up to k hits in rank order. Ties on score break toward
// the smaller chunk id so rankings are deterministic.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dim %d, index expects %d", len(query), f.dim)
	}
	if k <= 0 || f.Len() == 0 {
		return nil, nil
	}
	q := query
	if f.metric != MetricEuclidean {
		q = make([]float32, len(query))
		copy(q, query)
		normalize(q)
	}

	hits := make([]Hit, len(f.ids))
	for i, vec := range f.vectors {
		var score float64
		if f.metric == MetricEuclidean {
			score = l2Distance(q, vec)
		} else {
			score = dot(q, vec)
		}
		hits[i] = Hit{ChunkID: f.ids[i], Score: score}
	}

	ascending := f.metric == MetricEuclidean
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			if ascending {
				return hits[i].Score < hits[j].Score
			}
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
