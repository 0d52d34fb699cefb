package retrieval

import (
	"context"
	"fmt"

	"pubmedflo/internal/index"
	"pubmedflo/internal/models"
	"pubmedflo/internal/providers"
)

const DefaultK = 5

// MetadataSource resolves chunk ids into article metadata.
type MetadataSource interface {
	ChunkMetadata(ctx context.Context, chunkIDs []int64) (map[int64]models.ChunkMeta, error)
}

// Retriever answers "which chunks are most similar to this question".
// It encodes the query with the same model the index was built from and
// searches whatever artifact the manager currently serves.
type Retriever struct {
	encoder providers.EmbeddingProvider
	dim     int
	manager *index.Manager
	meta    MetadataSource
}

func NewRetriever(encoder providers.EmbeddingProvider, dim int, manager *index.Manager, meta MetadataSource) *Retriever {
	return &Retriever{encoder: encoder, dim: dim, manager: manager, meta: meta}
}

// Retrieve returns up to k chunks in rank order. An empty or fully
// deleted corpus yields an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, k int, metric index.Metric) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = DefaultK
	}
	art, err := r.manager.Ensure(ctx, metric)
	if err != nil {
		return nil, fmt.Errorf("ensure index: %w", err)
	}
	if art.Meta.VectorCount == 0 {
		return nil, nil
	}

	vectors, _, err := r.encoder.Embed(ctx, providers.EmbedRequest{
		Operation: "query_embed",
		Inputs:    []string{queryText},
		Dimension: r.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors for one input", len(vectors))
	}

	hits, err := art.Search(vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	metaByID, err := r.meta.ChunkMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunk metadata: %w", err)
	}

	results := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		m, ok := metaByID[h.ChunkID]
		if !ok {
			// Chunk was deleted after the artifact was built; drop it
			// rather than serve a dangling citation.
			continue
		}
		results = append(results, models.RetrievedChunk{
			ChunkID: h.ChunkID,
			DocID:   m.DocID,
			PMID:    m.PMID,
			Score:   h.Score,
			Title:   m.Title,
			Text:    m.Text,
		})
	}
	return results, nil
}

// Citations collapses ranked chunks into one citation per article,
// ordered by each article's best-ranked chunk.
func Citations(results []models.RetrievedChunk) []models.Citation {
	seen := make(map[int64]bool, len(results))
	var cites []models.Citation
	for _, r := range results {
		if seen[r.PMID] {
			continue
		}
		seen[r.PMID] = true
		cites = append(cites, models.Citation{PMID: r.PMID, DocID: r.DocID, Title: r.Title})
	}
	return cites
}
