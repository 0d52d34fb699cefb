package workflows

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pubmedflo/internal/activities"
	"pubmedflo/internal/ingest"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetIngestStatus   = "GetIngestStatus"
	QueryGetCorpusProgress = "GetCorpusProgress"
)

// DocumentIngestWorkflow runs the offline pipeline for one article:
// upsert document, extract text, chunk, embed what went stale, rebuild
// the index, mark the document processed. A document with no extractable
// text fails gracefully; an unreachable embedding model fails the run.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := IngestStatus{
		PMID:        input.Meta.PMID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	status.CurrentStep = "upsert_document"
	status.Steps[status.CurrentStep] = "processing"
	var docOut activities.UpsertDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "UpsertDocumentActivity", activities.UpsertDocumentInput{
		Meta:    input.Meta,
		AddedBy: input.AddedBy,
	}).Get(ctx, &docOut); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "extract_text"
	status.Steps[status.CurrentStep] = "processing"
	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{
		DocumentPath: input.DocumentPath,
	}).Get(ctx, &textOut); err != nil {
		if isNoTextError(err) {
			status.Status = "failed"
			status.FailReason = "no extractable text found"
			status.Steps[status.CurrentStep] = "failed"
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_document"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkDocumentActivity", activities.ChunkDocumentInput{
		PMID:         input.Meta.PMID,
		Text:         textOut.Text,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunkOut); err != nil {
		return "", err
	}
	status.ChunkCount = chunkOut.ChunkCount
	status.Steps[status.CurrentStep] = "done"

	if !input.DeferIndexing {
		status.CurrentStep = "embed_stale"
		status.Steps[status.CurrentStep] = "processing"
		var embedOut activities.EmbedStaleOutput
		if err := workflow.ExecuteActivity(ctx, "EmbedStaleActivity", activities.EmbedStaleInput{}).Get(ctx, &embedOut); err != nil {
			return "", err
		}
		status.Embedded = embedOut.Embedded
		status.Steps[status.CurrentStep] = "done"

		status.CurrentStep = "rebuild_index"
		status.Steps[status.CurrentStep] = "processing"
		var rebuildOut activities.RebuildIndexOutput
		if err := workflow.ExecuteActivity(ctx, "RebuildIndexActivity", activities.RebuildIndexInput{}).Get(ctx, &rebuildOut); err != nil {
			return "", err
		}
		status.VectorCount = rebuildOut.VectorCount
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "mark_processed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "MarkProcessedActivity", activities.MarkProcessedInput{
		PMID: input.Meta.PMID,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "done"
	status.Status = "processed"
	return status.Status, nil
}

// CorpusIngestWorkflow fans a directory of articles out to child ingest
// workflows, then embeds and rebuilds once for the whole batch.
func CorpusIngestWorkflow(ctx workflow.Context, input CorpusIngestInput) (string, error) {
	progress := CorpusIngestProgress{
		RunID:         input.RunID,
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetCorpusProgress, func() (CorpusIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListSourceFilesOutput
	if err := workflow.ExecuteActivity(ctx, "ListSourceFilesActivity", activities.ListSourceFilesInput{
		InputDir: input.InputDir,
	}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	progress.Total = len(listOut.Paths)

	metaByPMID := map[int64]ingest.ArticleMetadata{}
	if input.MetadataCSV != "" {
		var metaOut activities.LoadMetadataOutput
		if err := workflow.ExecuteActivity(ctx, "LoadMetadataActivity", activities.LoadMetadataInput{
			CSVPath: input.MetadataCSV,
		}).Get(ctx, &metaOut); err != nil {
			return "", err
		}
		for _, row := range metaOut.Rows {
			metaByPMID[row.PMID] = row
		}
	}

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(listOut.Paths); i += maxChildren {
		end := i + maxChildren
		if end > len(listOut.Paths) {
			end = len(listOut.Paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range listOut.Paths[i:end] {
			pmid, err := ingest.PMIDFromFilename(path)
			if err != nil {
				progress.Skipped++
				progress.PerDocument[path] = "skipped: " + err.Error()
				continue
			}
			meta, ok := metaByPMID[pmid]
			if !ok {
				meta = ingest.ArticleMetadata{PMID: pmid, Origin: ingest.OriginCSV}
			}

			progress.PerDocument[path] = "processing"
			workflowID := fmt.Sprintf("ingest-%s-pmid-%d", sanitizeID(input.RunID), pmid)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				DocumentPath:  path,
				Meta:          meta,
				ChunkSize:     input.ChunkSize,
				ChunkOverlap:  input.ChunkOverlap,
				DeferIndexing: true,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			path := childPaths[idx]
			if err != nil {
				progress.Failed++
				progress.PerDocument[path] = "failed"
				continue
			}
			if childStatus == "failed" {
				progress.Failed++
			}
			progress.Done++
			progress.PerDocument[path] = childStatus
		}
	}

	var embedOut activities.EmbedStaleOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedStaleActivity", activities.EmbedStaleInput{}).Get(ctx, &embedOut); err != nil {
		return "", err
	}
	var rebuildOut activities.RebuildIndexOutput
	if err := workflow.ExecuteActivity(ctx, "RebuildIndexActivity", activities.RebuildIndexInput{}).Get(ctx, &rebuildOut); err != nil {
		return "", err
	}

	_ = workflow.ExecuteActivity(ctx, "WriteIngestSummaryActivity", activities.WriteIngestSummaryInput{
		RunID: input.RunID,
		Summary: map[string]any{
			"run_id":       input.RunID,
			"total":        progress.Total,
			"done":         progress.Done,
			"failed":       progress.Failed,
			"skipped":      progress.Skipped,
			"embedded":     embedOut.Embedded,
			"vector_count": rebuildOut.VectorCount,
			"per_document": progress.PerDocument,
			"generated_at": workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

// DocumentDeleteWorkflow removes an article and rebuilds the index so
// its chunks stop being served.
func DocumentDeleteWorkflow(ctx workflow.Context, input DocumentDeleteInput) (string, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, "DeleteDocumentActivity", activities.DeleteDocumentInput{
		PMID: input.PMID,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	if err := workflow.ExecuteActivity(ctx, "RebuildIndexActivity", activities.RebuildIndexInput{}).Get(ctx, nil); err != nil {
		return "", err
	}
	return "deleted", nil
}

// CorpusReindexWorkflow embeds anything stale and rebuilds, optionally
// under a different similarity metric.
func CorpusReindexWorkflow(ctx workflow.Context, input ReindexInput) (string, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, "EmbedStaleActivity", activities.EmbedStaleInput{}).Get(ctx, nil); err != nil {
		return "", err
	}
	var rebuildOut activities.RebuildIndexOutput
	if err := workflow.ExecuteActivity(ctx, "RebuildIndexActivity", activities.RebuildIndexInput{
		Metric: input.Metric,
	}).Get(ctx, &rebuildOut); err != nil {
		return "", err
	}
	return fmt.Sprintf("reindexed %d vectors", rebuildOut.VectorCount), nil
}

func isNoTextError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no extractable text")
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, string(filepath.Separator), "-")
	s = strings.ReplaceAll(s, " ", "-")
	if s == "" {
		return "run"
	}
	return s
}
