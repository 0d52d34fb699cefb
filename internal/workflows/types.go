package workflows

import "pubmedflo/internal/ingest"

type DocumentIngestInput struct {
	DocumentPath  string                 `json:"document_path"`
	Meta          ingest.ArticleMetadata `json:"meta"`
	AddedBy       *int64                 `json:"added_by,omitempty"`
	ChunkSize     int                    `json:"chunk_size"`
	ChunkOverlap  int                    `json:"chunk_overlap"`
	DeferIndexing bool                   `json:"defer_indexing"`
}

type IngestStatus struct {
	PMID        int64             `json:"pmid"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
	ChunkCount  int               `json:"chunk_count"`
	Embedded    int               `json:"embedded"`
	VectorCount int               `json:"vector_count"`
}

type CorpusIngestInput struct {
	RunID                 string `json:"run_id"`
	InputDir              string `json:"input_dir"`
	MetadataCSV           string `json:"metadata_csv"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	ChunkSize             int    `json:"chunk_size"`
	ChunkOverlap          int    `json:"chunk_overlap"`
}

type CorpusIngestProgress struct {
	RunID         string            `json:"run_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	Skipped       int               `json:"skipped"`
	PerDocument   map[string]string `json:"per_document"`
	ChildWorkflow map[string]string `json:"child_workflow"`
}

type DocumentDeleteInput struct {
	PMID int64 `json:"pmid"`
}

type ReindexInput struct {
	Metric string `json:"metric"`
}
