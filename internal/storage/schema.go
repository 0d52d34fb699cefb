package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the corpus tables if they are missing, so a fresh
// deployment works without a separate migration step.
func EnsureSchema(ctx context.Context, db *DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS documents (
  doc_id BIGSERIAL PRIMARY KEY,
  pmid BIGINT NOT NULL UNIQUE,
  title TEXT,
  source_url TEXT,
  processed BOOLEAN NOT NULL DEFAULT FALSE,
  added_by BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS text_chunks (
  chunk_id BIGSERIAL PRIMARY KEY,
  pmid BIGINT NOT NULL REFERENCES documents(pmid) ON DELETE CASCADE,
  chunk_index INT NOT NULL,
  chunk_text TEXT NOT NULL,
  start_offset INT NOT NULL,
  end_offset INT NOT NULL,
  content_hash TEXT NOT NULL,
  UNIQUE (pmid, chunk_index)
);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
  chunk_id BIGINT NOT NULL REFERENCES text_chunks(chunk_id) ON DELETE CASCADE,
  pmid BIGINT NOT NULL,
  model_name TEXT NOT NULL,
  dim INT NOT NULL,
  vector REAL[] NOT NULL,
  text_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (chunk_id, model_name)
);

CREATE TABLE IF NOT EXISTS query_logs (
  query_id UUID PRIMARY KEY,
  query_text TEXT NOT NULL,
  response_text TEXT,
  user_id BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS query_retrievals (
  query_id UUID NOT NULL REFERENCES query_logs(query_id) ON DELETE CASCADE,
  doc_id BIGINT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
  PRIMARY KEY (query_id, doc_id)
);

CREATE INDEX IF NOT EXISTS idx_text_chunks_pmid ON text_chunks(pmid);
CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_model ON chunk_embeddings(model_name);
CREATE INDEX IF NOT EXISTS idx_query_logs_created ON query_logs(created_at DESC);
`
	if _, err := db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
