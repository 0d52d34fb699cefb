package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEuclideanRanksNearestFirst(t *testing.T) {
	f, err := NewFlat(MetricEuclidean, 2)
	require.NoError(t, err)
	require.NoError(t, f.Add(1, []float32{0, 0}))
	require.NoError(t, f.Add(2, []float32{3, 4}))
	require.NoError(t, f.Add(3, []float32{1, 0}))

	hits, err := f.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, int64(1), hits[0].ChunkID)
	require.Equal(t, int64(3), hits[1].ChunkID)
	require.Equal(t, int64(2), hits[2].ChunkID)
	require.InDelta(t, 0.0, hits[0].Score, 1e-9)
	require.InDelta(t, 5.0, hits[2].Score, 1e-9)
}

func TestCosineRanksMostSimilarFirst(t *testing.T) {
	f, err := NewFlat(MetricCosine, 2)
	require.NoError(t, err)
	require.NoError(t, f.Add(10, []float32{1, 0}))
	require.NoError(t, f.Add(20, []float32{0, 1}))
	require.NoError(t, f.Add(30, []float32{-1, 0}))

	hits, err := f.Search([]float32{2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, int64(10), hits[0].ChunkID)
	require.InDelta(t, 1.0, hits[0].Score, 1e-6)
	require.Equal(t, int64(30), hits[2].ChunkID)
	require.InDelta(t, -1.0, hits[2].Score, 1e-6)
}

func TestCosineScoreIgnoresMagnitude(t *testing.T) {
	f, err := NewFlat(MetricCosine, 2)
	require.NoError(t, err)
	require.NoError(t, f.Add(1, []float32{0.001, 0}))
	require.NoError(t, f.Add(2, []float32{1000, 0}))

	hits, err := f.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.InDelta(t, hits[0].Score, hits[1].Score, 1e-6)
}

func TestScoreTiesBreakTowardSmallerChunkID(t *testing.T) {
	f, err := NewFlat(MetricEuclidean, 1)
	require.NoError(t, err)
	require.NoError(t, f.Add(7, []float32{2}))
	require.NoError(t, f.Add(3, []float32{2}))
	require.NoError(t, f.Add(5, []float32{2}))

	hits, err := f.Search([]float32{0}, 3)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 5, 7}, []int64{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID})
}

func TestSearchClampsKToIndexSize(t *testing.T) {
	f, err := NewFlat(MetricCosine, 1)
	require.NoError(t, err)
	require.NoError(t, f.Add(1, []float32{1}))
	require.NoError(t, f.Add(2, []float32{1}))

	hits, err := f.Search([]float32{1}, 50)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSearchEmptyIndex(t *testing.T) {
	f, err := NewFlat(MetricCosine, 0)
	require.NoError(t, err)
	hits, err := f.Search(nil, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	f, err := NewFlat(MetricCosine, 3)
	require.NoError(t, err)
	require.Error(t, f.Add(1, []float32{1, 2}))
}

func TestParseMetric(t *testing.T) {
	for _, s := range []string{"cosine", "euclidean", "ip"} {
		m, err := ParseMetric(s)
		require.NoError(t, err)
		require.Equal(t, Metric(s), m)
	}
	_, err := ParseMetric("manhattan")
	require.Error(t, err)
}
