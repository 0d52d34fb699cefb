package embed

import (
	"context"
	"fmt"
	"log"
	"sync"

	"pubmedflo/internal/models"
	"pubmedflo/internal/providers"
	"pubmedflo/internal/storage"
	"pubmedflo/internal/util"
)

// Source lists chunks that need embedding work.
type Source interface {
	ListStaleChunks(ctx context.Context, model string) ([]storage.StaleChunk, error)
}

// Sink stores finished embedding rows.
type Sink interface {
	UpsertEmbeddings(ctx context.Context, embeddings []models.ChunkEmbedding) error
}

// Generator brings the embedding table up to date with the chunk table.
// Chunks whose stored text hash already matches their content hash are
// skipped entirely; the rest are embedded in batches, documents fanned
// out across a bounded number of workers.
type Generator struct {
	provider    providers.EmbeddingProvider
	model       string
	dim         int
	batchSize   int
	maxParallel int
	source      Source
	sink        Sink
}

func NewGenerator(provider providers.EmbeddingProvider, model string, dim, batchSize, maxParallel int, source Source, sink Sink) *Generator {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Generator{
		provider:    provider,
		model:       model,
		dim:         dim,
		batchSize:   batchSize,
		maxParallel: maxParallel,
		source:      source,
		sink:        sink,
	}
}

// Run embeds every stale chunk and reports how many rows were written.
// An unreachable embedding model is fatal: no partial pass is attempted.
func (g *Generator) Run(ctx context.Context) (int, error) {
	if err := g.probe(ctx); err != nil {
		return 0, err
	}

	stale, err := g.source.ListStaleChunks(ctx, g.model)
	if err != nil {
		return 0, fmt.Errorf("list stale chunks: %w", err)
	}
	if len(stale) == 0 {
		log.Printf("embed: all chunk embeddings current (model=%s)", g.model)
		return 0, nil
	}
	log.Printf("embed: %d stale chunks to embed (model=%s)", len(stale), g.model)

	groups := groupByPMID(stale)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		total    int
	)
	sem := make(chan struct{}, g.maxParallel)

	for _, group := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(chunks []storage.StaleChunk) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := g.embedDocument(ctx, chunks)
			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
		}(group)
	}
	wg.Wait()

	if firstErr != nil {
		return total, firstErr
	}
	log.Printf("embed: wrote %d embeddings (model=%s)", total, g.model)
	return total, nil
}

func (g *Generator) embedDocument(ctx context.Context, chunks []storage.StaleChunk) (int, error) {
	written := 0
	for start := 0; start < len(chunks); start += g.batchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := start + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		inputs := make([]string, len(batch))
		for i, c := range batch {
			inputs[i] = c.Text
		}
		vectors, _, err := g.provider.Embed(ctx, providers.EmbedRequest{
			Operation: "chunk_embed",
			Inputs:    inputs,
			Dimension: g.dim,
		})
		if err != nil {
			return written, fmt.Errorf("embed batch pmid=%d: %w", batch[0].PMID, err)
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("embed batch pmid=%d: got %d vectors for %d inputs", batch[0].PMID, len(vectors), len(batch))
		}

		rows := make([]models.ChunkEmbedding, len(batch))
		for i, c := range batch {
			rows[i] = models.ChunkEmbedding{
				ChunkID:   c.ChunkID,
				PMID:      c.PMID,
				ModelName: g.model,
				Dim:       len(vectors[i]),
				Vector:    vectors[i],
				TextHash:  c.ContentHash,
			}
		}
		if err := g.sink.UpsertEmbeddings(ctx, rows); err != nil {
			return written, fmt.Errorf("store embeddings pmid=%d: %w", batch[0].PMID, err)
		}
		written += len(rows)
	}
	return written, nil
}

func (g *Generator) probe(ctx context.Context) error {
	_, _, err := g.provider.Embed(ctx, providers.EmbedRequest{
		Operation: "model_probe",
		Inputs:    []string{"probe"},
		Dimension: g.dim,
	})
	if err != nil {
		return fmt.Errorf("%w: model %s: %v", util.ErrModelUnavailable, g.model, err)
	}
	return nil
}

func groupByPMID(stale []storage.StaleChunk) [][]storage.StaleChunk {
	var groups [][]storage.StaleChunk
	for _, s := range stale {
		if n := len(groups); n > 0 && groups[n-1][0].PMID == s.PMID {
			groups[n-1] = append(groups[n-1], s)
			continue
		}
		groups = append(groups, []storage.StaleChunk{s})
	}
	return groups
}
