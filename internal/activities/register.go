package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListSourceFilesActivity)
	w.RegisterActivity(a.LoadMetadataActivity)
	w.RegisterActivity(a.UpsertDocumentActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkDocumentActivity)
	w.RegisterActivity(a.EmbedStaleActivity)
	w.RegisterActivity(a.RebuildIndexActivity)
	w.RegisterActivity(a.MarkProcessedActivity)
	w.RegisterActivity(a.DeleteDocumentActivity)
	w.RegisterActivity(a.WriteIngestSummaryActivity)
}
