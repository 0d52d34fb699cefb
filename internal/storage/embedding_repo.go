package storage

import (
	"context"
	"fmt"

	"pubmedflo/internal/models"
)

// StaleChunk is a chunk whose stored embedding for a model is missing or
// was computed from a different version of the chunk text.
type StaleChunk struct {
	ChunkID     int64
	PMID        int64
	Text        string
	ContentHash string
}

type EmbeddingRepo struct {
	db *DB
}

func NewEmbeddingRepo(db *DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// ListStaleChunks returns chunks with no embedding under the model, or
// whose stored text hash no longer matches the chunk content hash.
func (r *EmbeddingRepo) ListStaleChunks(ctx context.Context, model string) ([]StaleChunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT tc.chunk_id, tc.pmid, tc.chunk_text, tc.content_hash
		FROM text_chunks tc
		LEFT JOIN chunk_embeddings ce
			ON ce.chunk_id = tc.chunk_id AND ce.model_name = $1
		WHERE ce.chunk_id IS NULL OR ce.text_hash <> tc.content_hash
		ORDER BY tc.pmid, tc.chunk_id`, model)
	if err != nil {
		return nil, fmt.Errorf("list stale chunks: %w", err)
	}
	defer rows.Close()

	var stale []StaleChunk
	for rows.Next() {
		var s StaleChunk
		if err := rows.Scan(&s.ChunkID, &s.PMID, &s.Text, &s.ContentHash); err != nil {
			return nil, fmt.Errorf("scan stale chunk: %w", err)
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}

func (r *EmbeddingRepo) UpsertEmbeddings(ctx context.Context, embeddings []models.ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert embeddings: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range embeddings {
		_, err := tx.Exec(ctx, `
			INSERT INTO chunk_embeddings (chunk_id, pmid, model_name, dim, vector, text_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (chunk_id, model_name) DO UPDATE SET
				dim       = EXCLUDED.dim,
				vector    = EXCLUDED.vector,
				text_hash = EXCLUDED.text_hash,
				created_at = now()`,
			e.ChunkID, e.PMID, e.ModelName, e.Dim, e.Vector, e.TextHash)
		if err != nil {
			return fmt.Errorf("upsert embedding chunk=%d: %w", e.ChunkID, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadEmbeddings returns every vector stored under the model, ordered by
// chunk id so the index positions are reproducible.
func (r *EmbeddingRepo) LoadEmbeddings(ctx context.Context, model string) ([]models.StoredEmbedding, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT chunk_id, vector FROM chunk_embeddings
		WHERE model_name = $1 ORDER BY chunk_id`, model)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEmbedding
	for rows.Next() {
		var e models.StoredEmbedding
		if err := rows.Scan(&e.ChunkID, &e.Vector); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EmbeddingRepo) CountEmbeddings(ctx context.Context, model string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunk_embeddings WHERE model_name = $1`, model).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// PruneOtherModels drops embeddings left behind by a model the deployment
// no longer uses.
func (r *EmbeddingRepo) PruneOtherModels(ctx context.Context, keep string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE model_name <> $1`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}
