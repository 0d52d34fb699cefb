package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"pubmedflo/internal/models"
)

// Source is the embedding store the manager builds from.
type Source interface {
	LoadEmbeddings(ctx context.Context, model string) ([]models.StoredEmbedding, error)
	CountEmbeddings(ctx context.Context, model string) (int, error)
}

// Manager owns the served artifact. Searches read the current artifact
// through an atomic pointer; rebuilds construct a replacement off to the
// side and swap it in whole, so queries never see a half-built index.
type Manager struct {
	source Source
	dir    string
	model  string
	metric Metric

	mu       sync.Mutex
	current  atomic.Pointer[Artifact]
	rebuilds atomic.Int64
}

func NewManager(source Source, dir, model string, metric Metric) *Manager {
	return &Manager{source: source, dir: dir, model: model, metric: metric}
}

// Start loads the persisted artifact if one exists and is still fresh
// against the store; otherwise it rebuilds. A corrupt artifact on disk is
// discarded and rebuilt, not served.
func (m *Manager) Start(ctx context.Context) error {
	art, err := Load(m.dir)
	switch {
	case err == nil:
		fresh, ferr := m.fresh(ctx, art, m.metric)
		if ferr != nil {
			return ferr
		}
		if fresh {
			m.current.Store(art)
			log.Printf("index: serving persisted artifact (%d vectors, metric=%s)", art.Meta.VectorCount, art.Meta.Metric)
			return nil
		}
		log.Printf("index: persisted artifact stale, rebuilding")
	case errors.Is(err, os.ErrNotExist):
		log.Printf("index: no persisted artifact, building")
	default:
		log.Printf("index: discarding unreadable artifact: %v", err)
	}
	_, err = m.rebuild(ctx, m.metric)
	return err
}

// Ensure returns an artifact that is fresh for the live store and built
// under the requested metric, rebuilding only when necessary. An empty
// metric means the configured default.
func (m *Manager) Ensure(ctx context.Context, metric Metric) (*Artifact, error) {
	if metric == "" {
		metric = m.metric
	}
	art := m.current.Load()
	if art != nil {
		fresh, err := m.fresh(ctx, art, metric)
		if err != nil {
			return nil, err
		}
		if fresh {
			return art, nil
		}
	}
	return m.rebuild(ctx, metric)
}

// Rebuild forces a full rebuild regardless of freshness.
func (m *Manager) Rebuild(ctx context.Context, metric Metric) (*Artifact, error) {
	if metric == "" {
		metric = m.metric
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuildLocked(ctx, metric)
}

func (m *Manager) Current() *Artifact { return m.current.Load() }

// RebuildCount reports how many rebuilds this manager has performed.
func (m *Manager) RebuildCount() int64 { return m.rebuilds.Load() }

func (m *Manager) fresh(ctx context.Context, art *Artifact, metric Metric) (bool, error) {
	if art.Meta.ModelName != m.model || art.Meta.Metric != metric {
		return false, nil
	}
	count, err := m.source.CountEmbeddings(ctx, m.model)
	if err != nil {
		return false, fmt.Errorf("count embeddings: %w", err)
	}
	return art.Meta.VectorCount == count, nil
}

func (m *Manager) rebuild(ctx context.Context, metric Metric) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A concurrent caller may have rebuilt while we waited on the lock.
	if art := m.current.Load(); art != nil {
		fresh, err := m.fresh(ctx, art, metric)
		if err != nil {
			return nil, err
		}
		if fresh {
			return art, nil
		}
	}
	return m.rebuildLocked(ctx, metric)
}

func (m *Manager) rebuildLocked(ctx context.Context, metric Metric) (*Artifact, error) {
	rows, err := m.source.LoadEmbeddings(ctx, m.model)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	art, err := Build(m.model, metric, rows)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if err := art.Save(m.dir); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	m.current.Store(art)
	m.rebuilds.Add(1)
	log.Printf("index: rebuilt with %d vectors (model=%s metric=%s)", art.Meta.VectorCount, m.model, metric)
	return art, nil
}
