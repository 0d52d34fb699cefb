package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pubmedflo/internal/models"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepo persists article records keyed by PMID. Re-ingesting the
// same PMID updates the row in place rather than creating a duplicate.
type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) UpsertDocument(ctx context.Context, doc models.Document) (int64, error) {
	var docID int64
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO documents (pmid, title, source_url, added_by, processed)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, FALSE)
		ON CONFLICT (pmid) DO UPDATE SET
			title      = COALESCE(NULLIF(EXCLUDED.title, ''), documents.title),
			source_url = COALESCE(NULLIF(EXCLUDED.source_url, ''), documents.source_url),
			processed  = FALSE
		RETURNING doc_id`,
		doc.PMID, doc.Title, doc.SourceURL, doc.AddedBy,
	).Scan(&docID)
	if err != nil {
		return 0, fmt.Errorf("upsert document pmid=%d: %w", doc.PMID, err)
	}
	return docID, nil
}

func (r *DocumentRepo) GetByPMID(ctx context.Context, pmid int64) (models.Document, error) {
	var doc models.Document
	err := r.db.Pool.QueryRow(ctx, `
		SELECT doc_id, pmid, COALESCE(title, ''), COALESCE(source_url, ''), processed, added_by, created_at
		FROM documents WHERE pmid = $1`, pmid,
	).Scan(&doc.DocID, &doc.PMID, &doc.Title, &doc.SourceURL, &doc.Processed, &doc.AddedBy, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document pmid=%d: %w", pmid, err)
	}
	return doc, nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT doc_id, pmid, COALESCE(title, ''), COALESCE(source_url, ''), processed, added_by, created_at
		FROM documents ORDER BY pmid`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.DocID, &doc.PMID, &doc.Title, &doc.SourceURL, &doc.Processed, &doc.AddedBy, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) MarkProcessed(ctx context.Context, pmid int64) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE documents SET processed = TRUE WHERE pmid = $1`, pmid)
	if err != nil {
		return fmt.Errorf("mark processed pmid=%d: %w", pmid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteByPMID removes the document row. Chunks, embeddings and retrieval
// links go with it via ON DELETE CASCADE; the live index still serves the
// old vectors until the next rebuild.
func (r *DocumentRepo) DeleteByPMID(ctx context.Context, pmid int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE pmid = $1`, pmid)
	if err != nil {
		return fmt.Errorf("delete document pmid=%d: %w", pmid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
