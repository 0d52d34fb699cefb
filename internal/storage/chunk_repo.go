package storage

import (
	"context"
	"fmt"

	"pubmedflo/internal/models"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks upserts the chunk rows for one article and drops any
// trailing rows left over from a longer previous version of the text.
// A chunk whose text is unchanged keeps its content hash, so its stored
// embedding stays valid.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, pmid int64, chunks []models.TextChunk) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO text_chunks (pmid, chunk_index, chunk_text, start_offset, end_offset, content_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (pmid, chunk_index) DO UPDATE SET
				chunk_text   = EXCLUDED.chunk_text,
				start_offset = EXCLUDED.start_offset,
				end_offset   = EXCLUDED.end_offset,
				content_hash = EXCLUDED.content_hash`,
			pmid, c.ChunkIndex, c.Text, c.StartOffset, c.EndOffset, c.ContentHash)
		if err != nil {
			return fmt.Errorf("upsert chunk pmid=%d index=%d: %w", pmid, c.ChunkIndex, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM text_chunks WHERE pmid = $1 AND chunk_index >= $2`, pmid, len(chunks)); err != nil {
		return fmt.Errorf("trim chunks pmid=%d: %w", pmid, err)
	}
	return tx.Commit(ctx)
}

func (r *ChunkRepo) ListByPMID(ctx context.Context, pmid int64) ([]models.TextChunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT chunk_id, pmid, chunk_index, chunk_text, start_offset, end_offset, content_hash
		FROM text_chunks WHERE pmid = $1 ORDER BY chunk_index`, pmid)
	if err != nil {
		return nil, fmt.Errorf("list chunks pmid=%d: %w", pmid, err)
	}
	defer rows.Close()

	var chunks []models.TextChunk
	for rows.Next() {
		var c models.TextChunk
		if err := rows.Scan(&c.ChunkID, &c.PMID, &c.ChunkIndex, &c.Text, &c.StartOffset, &c.EndOffset, &c.ContentHash); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkMetadata resolves chunk ids returned by an index search into the
// article fields needed to present a result.
func (r *ChunkRepo) ChunkMetadata(ctx context.Context, chunkIDs []int64) (map[int64]models.ChunkMeta, error) {
	if len(chunkIDs) == 0 {
		return map[int64]models.ChunkMeta{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT tc.chunk_id, d.doc_id, tc.pmid, COALESCE(d.title, ''), tc.chunk_text
		FROM text_chunks tc
		JOIN documents d ON d.pmid = tc.pmid
		WHERE tc.chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("chunk metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.ChunkMeta, len(chunkIDs))
	for rows.Next() {
		var m models.ChunkMeta
		if err := rows.Scan(&m.ChunkID, &m.DocID, &m.PMID, &m.Title, &m.Text); err != nil {
			return nil, fmt.Errorf("scan chunk metadata: %w", err)
		}
		out[m.ChunkID] = m
	}
	return out, rows.Err()
}
