package activities

import "pubmedflo/internal/ingest"

type ListSourceFilesInput struct {
	InputDir string `json:"input_dir"`
}

type ListSourceFilesOutput struct {
	Paths []string `json:"paths"`
}

type LoadMetadataInput struct {
	CSVPath string `json:"csv_path"`
}

type LoadMetadataOutput struct {
	Rows []ingest.ArticleMetadata `json:"rows"`
}

type UpsertDocumentInput struct {
	Meta    ingest.ArticleMetadata `json:"meta"`
	AddedBy *int64                 `json:"added_by,omitempty"`
}

type UpsertDocumentOutput struct {
	DocID int64 `json:"doc_id"`
}

type ExtractTextInput struct {
	DocumentPath string `json:"document_path"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
}

type ChunkDocumentInput struct {
	PMID         int64  `json:"pmid"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

type ChunkDocumentOutput struct {
	ChunkCount int `json:"chunk_count"`
}

type EmbedStaleInput struct{}

type EmbedStaleOutput struct {
	Embedded int `json:"embedded"`
}

type RebuildIndexInput struct {
	Metric string `json:"metric"`
}

type RebuildIndexOutput struct {
	VectorCount int `json:"vector_count"`
}

type MarkProcessedInput struct {
	PMID int64 `json:"pmid"`
}

type DeleteDocumentInput struct {
	PMID int64 `json:"pmid"`
}

type WriteIngestSummaryInput struct {
	RunID   string         `json:"run_id"`
	Summary map[string]any `json:"summary"`
}
