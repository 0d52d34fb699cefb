package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pubmedflo/internal/models"
	"pubmedflo/internal/util"
)

type fakeStore struct {
	rows []models.StoredEmbedding
}

func (s *fakeStore) LoadEmbeddings(_ context.Context, _ string) ([]models.StoredEmbedding, error) {
	out := make([]models.StoredEmbedding, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeStore) CountEmbeddings(_ context.Context, _ string) (int, error) {
	return len(s.rows), nil
}

func vec(vals ...float32) []float32 { return vals }

func TestArtifactSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rows := []models.StoredEmbedding{
		{ChunkID: 2, Vector: vec(0, 1)},
		{ChunkID: 1, Vector: vec(1, 0)},
	}
	built, err := Build("nomic-embed-text", MetricCosine, rows)
	require.NoError(t, err)
	require.NoError(t, built.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, built.Meta.ModelName, loaded.Meta.ModelName)
	require.Equal(t, built.Meta.VectorCount, loaded.Meta.VectorCount)
	require.Equal(t, built.Meta.EmbeddingDim, loaded.Meta.EmbeddingDim)

	want, err := built.Search(vec(1, 0), 2)
	require.NoError(t, err)
	got, err := loaded.Search(vec(1, 0), 2)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadReportsCorruptVectorFile(t *testing.T) {
	dir := t.TempDir()
	built, err := Build("m", MetricCosine, []models.StoredEmbedding{{ChunkID: 1, Vector: vec(1, 0)}})
	require.NoError(t, err)
	require.NoError(t, built.Save(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_vectors.bin"), []byte{1, 2, 3}, 0o644))
	_, err = Load(dir)
	require.ErrorIs(t, err, util.ErrIndexCorrupt)
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnsureRebuildsWhenStoreGrows(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{rows: []models.StoredEmbedding{{ChunkID: 1, Vector: vec(1, 0)}}}
	m := NewManager(store, t.TempDir(), "m", MetricCosine)
	require.NoError(t, m.Start(ctx))
	require.EqualValues(t, 1, m.RebuildCount())

	art, err := m.Ensure(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, art.Meta.VectorCount)
	require.EqualValues(t, 1, m.RebuildCount())

	store.rows = append(store.rows, models.StoredEmbedding{ChunkID: 2, Vector: vec(0, 1)})
	art, err = m.Ensure(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, art.Meta.VectorCount)
	require.EqualValues(t, 2, m.RebuildCount())
}

func TestEnsureRebuildsAfterDeletion(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{rows: []models.StoredEmbedding{
		{ChunkID: 1, Vector: vec(1, 0)},
		{ChunkID: 2, Vector: vec(0, 1)},
	}}
	m := NewManager(store, t.TempDir(), "m", MetricCosine)
	require.NoError(t, m.Start(ctx))

	// Deleted rows stay visible in the served artifact until Ensure
	// observes the count change.
	store.rows = store.rows[:1]
	require.Equal(t, 2, m.Current().Meta.VectorCount)

	art, err := m.Ensure(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, art.Meta.VectorCount)
}

func TestMetricSwitchForcesExactlyOneRebuild(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{rows: []models.StoredEmbedding{{ChunkID: 1, Vector: vec(1, 0)}}}
	m := NewManager(store, t.TempDir(), "m", MetricCosine)
	require.NoError(t, m.Start(ctx))
	require.EqualValues(t, 1, m.RebuildCount())

	art, err := m.Ensure(ctx, MetricEuclidean)
	require.NoError(t, err)
	require.Equal(t, MetricEuclidean, art.Meta.Metric)
	require.EqualValues(t, 2, m.RebuildCount())

	art, err = m.Ensure(ctx, MetricEuclidean)
	require.NoError(t, err)
	require.Equal(t, MetricEuclidean, art.Meta.Metric)
	require.EqualValues(t, 2, m.RebuildCount())
}

func TestStartRecoversFromCorruptArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := &fakeStore{rows: []models.StoredEmbedding{{ChunkID: 1, Vector: vec(1, 0)}}}

	m := NewManager(store, dir, "m", MetricCosine)
	require.NoError(t, m.Start(ctx))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_ids.json"), []byte("{"), 0o644))

	m2 := NewManager(store, dir, "m", MetricCosine)
	require.NoError(t, m2.Start(ctx))
	require.Equal(t, 1, m2.Current().Meta.VectorCount)
}

func TestStartServesFreshPersistedArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := &fakeStore{rows: []models.StoredEmbedding{{ChunkID: 1, Vector: vec(1, 0)}}}

	m := NewManager(store, dir, "m", MetricCosine)
	require.NoError(t, m.Start(ctx))

	m2 := NewManager(store, dir, "m", MetricCosine)
	require.NoError(t, m2.Start(ctx))
	require.EqualValues(t, 0, m2.RebuildCount())
	require.NotNil(t, m2.Current())
}

func TestEmptyStoreBuildsEmptyArtifact(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeStore{}, t.TempDir(), "m", MetricCosine)
	require.NoError(t, m.Start(ctx))
	art := m.Current()
	require.Equal(t, 0, art.Meta.VectorCount)
	hits, err := art.Search(nil, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}
