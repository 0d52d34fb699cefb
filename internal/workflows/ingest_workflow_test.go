package workflows

import (
	"context"
	"errors"
	"testing"

	"pubmedflo/internal/activities"
	"pubmedflo/internal/ingest"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerIngestActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "UpsertDocumentActivity", func(context.Context, activities.UpsertDocumentInput) (activities.UpsertDocumentOutput, error) {
		return activities.UpsertDocumentOutput{}, nil
	})
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkDocumentActivity", func(context.Context, activities.ChunkDocumentInput) (activities.ChunkDocumentOutput, error) {
		return activities.ChunkDocumentOutput{}, nil
	})
	registerActivityName(env, "EmbedStaleActivity", func(context.Context, activities.EmbedStaleInput) (activities.EmbedStaleOutput, error) {
		return activities.EmbedStaleOutput{}, nil
	})
	registerActivityName(env, "RebuildIndexActivity", func(context.Context, activities.RebuildIndexInput) (activities.RebuildIndexOutput, error) {
		return activities.RebuildIndexOutput{}, nil
	})
	registerActivityName(env, "MarkProcessedActivity", func(context.Context, activities.MarkProcessedInput) error { return nil })
}

func sampleMeta() ingest.ArticleMetadata {
	return ingest.ArticleMetadata{PMID: 31452104, Title: "Aspirin", Origin: ingest.OriginForm}
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpsertDocumentActivity", mock.Anything, mock.Anything).Return(activities.UpsertDocumentOutput{DocID: 7}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{DocumentPath: "/data/in/31452104.pdf"}).
		Return(activities.ExtractTextOutput{Text: "aspirin inhibits cyclooxygenase"}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).Return(activities.ChunkDocumentOutput{ChunkCount: 2}, nil)
	env.OnActivity("EmbedStaleActivity", mock.Anything, mock.Anything).Return(activities.EmbedStaleOutput{Embedded: 2}, nil)
	env.OnActivity("RebuildIndexActivity", mock.Anything, mock.Anything).Return(activities.RebuildIndexOutput{VectorCount: 2}, nil)
	env.OnActivity("MarkProcessedActivity", mock.Anything, activities.MarkProcessedInput{PMID: 31452104}).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{
		DocumentPath: "/data/in/31452104.pdf",
		Meta:         sampleMeta(),
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
}

func TestDocumentIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpsertDocumentActivity", mock.Anything, mock.Anything).Return(activities.UpsertDocumentOutput{DocID: 7}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{}, errors.New("no extractable text found"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{
		DocumentPath: "/data/in/31452104.pdf",
		Meta:         sampleMeta(),
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestDocumentIngestWorkflowDeferredIndexingSkipsEmbedAndRebuild(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpsertDocumentActivity", mock.Anything, mock.Anything).Return(activities.UpsertDocumentOutput{DocID: 7}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "body"}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).Return(activities.ChunkDocumentOutput{ChunkCount: 1}, nil)
	env.OnActivity("MarkProcessedActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{
		DocumentPath:  "/data/in/31452104.txt",
		Meta:          sampleMeta(),
		DeferIndexing: true,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out)
	env.AssertNotCalled(t, "EmbedStaleActivity", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "RebuildIndexActivity", mock.Anything, mock.Anything)
}

func TestDocumentDeleteWorkflowRebuildsIndex(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentDeleteWorkflow)
	registerActivityName(env, "DeleteDocumentActivity", func(context.Context, activities.DeleteDocumentInput) error { return nil })
	registerActivityName(env, "RebuildIndexActivity", func(context.Context, activities.RebuildIndexInput) (activities.RebuildIndexOutput, error) {
		return activities.RebuildIndexOutput{}, nil
	})

	env.OnActivity("DeleteDocumentActivity", mock.Anything, activities.DeleteDocumentInput{PMID: 31452104}).Return(nil)
	env.OnActivity("RebuildIndexActivity", mock.Anything, mock.Anything).Return(activities.RebuildIndexOutput{VectorCount: 0}, nil)

	env.ExecuteWorkflow(DocumentDeleteWorkflow, DocumentDeleteInput{PMID: 31452104})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "deleted", out)
}

func TestCorpusReindexWorkflowPassesMetric(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CorpusReindexWorkflow)
	registerActivityName(env, "EmbedStaleActivity", func(context.Context, activities.EmbedStaleInput) (activities.EmbedStaleOutput, error) {
		return activities.EmbedStaleOutput{}, nil
	})
	registerActivityName(env, "RebuildIndexActivity", func(context.Context, activities.RebuildIndexInput) (activities.RebuildIndexOutput, error) {
		return activities.RebuildIndexOutput{}, nil
	})

	env.OnActivity("EmbedStaleActivity", mock.Anything, mock.Anything).Return(activities.EmbedStaleOutput{Embedded: 0}, nil)
	env.OnActivity("RebuildIndexActivity", mock.Anything, activities.RebuildIndexInput{Metric: "euclidean"}).
		Return(activities.RebuildIndexOutput{VectorCount: 12}, nil)

	env.ExecuteWorkflow(CorpusReindexWorkflow, ReindexInput{Metric: "euclidean"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "reindexed 12 vectors", out)
}
