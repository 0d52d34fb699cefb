package storage

import (
	"context"
	"fmt"

	"pubmedflo/internal/models"
)

type QueryLogRepo struct {
	db *DB
}

func NewQueryLogRepo(db *DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

// RecordQuery writes the query log row and its retrieved-document links
// in one transaction, so a query is either fully audited or not at all.
func (r *QueryLogRepo) RecordQuery(ctx context.Context, rec models.QueryRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record query: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO query_logs (query_id, query_text, response_text, user_id)
		VALUES ($1, $2, $3, $4)`,
		rec.QueryID, rec.QueryText, rec.Answer, rec.UserID)
	if err != nil {
		return fmt.Errorf("insert query log %s: %w", rec.QueryID, err)
	}

	for _, docID := range rec.DocIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO query_retrievals (query_id, doc_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, rec.QueryID, docID)
		if err != nil {
			return fmt.Errorf("insert query retrieval %s doc=%d: %w", rec.QueryID, docID, err)
		}
	}
	return tx.Commit(ctx)
}
