package models

import "time"

type Document struct {
	DocID     int64     `json:"doc_id"`
	PMID      int64     `json:"pmid"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url,omitempty"`
	Processed bool      `json:"processed"`
	AddedBy   *int64    `json:"added_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type TextChunk struct {
	ChunkID     int64  `json:"chunk_id"`
	PMID        int64  `json:"pmid"`
	ChunkIndex  int    `json:"chunk_index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	ContentHash string `json:"content_hash"`
}

// ChunkEmbedding is keyed by (chunk, model). TextHash records the content hash
// of the text that was actually embedded; when it no longer matches the
// chunk's current hash the embedding is stale and gets overwritten.
type ChunkEmbedding struct {
	ChunkID   int64     `json:"chunk_id"`
	PMID      int64     `json:"pmid"`
	ModelName string    `json:"model_name"`
	Dim       int       `json:"embedding_dim"`
	Vector    []float32 `json:"embedding"`
	TextHash  string    `json:"text_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredEmbedding is the minimal row the index builder loads: position in the
// ordered result becomes the internal index position.
type StoredEmbedding struct {
	ChunkID int64
	Vector  []float32
}

type RetrievedChunk struct {
	ChunkID int64   `json:"chunk_id"`
	DocID   int64   `json:"document_id"`
	PMID    int64   `json:"pmid"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
	Text    string  `json:"text"`
}

// ChunkMeta is the metadata joined onto a search hit.
type ChunkMeta struct {
	ChunkID int64
	DocID   int64
	PMID    int64
	Title   string
	Text    string
}

type Citation struct {
	PMID  int64  `json:"pmid"`
	DocID int64  `json:"document_id"`
	Title string `json:"title"`
}

type QueryResult struct {
	QueryID   string           `json:"query_id"`
	Answer    *string          `json:"answer"`
	Status    string           `json:"status,omitempty"`
	Citations []Citation       `json:"citations"`
	Retrieved []RetrievedChunk `json:"retrieved_chunks"`
}

// QueryRecord is what the query auditor persists, one atomic record per query.
type QueryRecord struct {
	QueryID   string
	QueryText string
	Answer    *string
	UserID    *int64
	DocIDs    []int64
}
