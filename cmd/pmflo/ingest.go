package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pubmedflo/internal/activities"
	"pubmedflo/internal/config"
	"pubmedflo/internal/ingest"
	"pubmedflo/internal/util"
)

var (
	ingestDir string
	ingestCSV string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a directory of articles into the corpus",
	Long: `Runs the offline pipeline locally: extract text, chunk, embed what is
stale, and rebuild the similarity index. Files are matched to metadata
rows by the PMID in their filename.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "directory of .pdf/.txt articles to ingest")
	ingestCmd.Flags().StringVar(&ingestCSV, "csv", "", "metadata csv with pmid,title,source_url columns")
	_ = ingestCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg := config.Load()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	acts, err := activities.New(cfg, db)
	if err != nil {
		return err
	}

	metaByPMID := map[int64]ingest.ArticleMetadata{}
	if ingestCSV != "" {
		f, err := os.Open(ingestCSV)
		if err != nil {
			return fmt.Errorf("open metadata csv: %w", err)
		}
		rows, err := ingest.ParseCSV(f)
		f.Close()
		if err != nil {
			return err
		}
		for _, row := range rows {
			metaByPMID[row.PMID] = row
		}
	}

	listOut, err := acts.ListSourceFilesActivity(ctx, activities.ListSourceFilesInput{InputDir: ingestDir})
	if err != nil {
		return err
	}
	if len(listOut.Paths) == 0 {
		return fmt.Errorf("no .pdf or .txt files in %s", ingestDir)
	}

	processed, failed := 0, 0
	for _, path := range listOut.Paths {
		pmid, err := ingest.PMIDFromFilename(path)
		if err != nil {
			cmd.PrintErrf("skip %s: %v\n", path, err)
			continue
		}
		meta, ok := metaByPMID[pmid]
		if !ok {
			meta = ingest.ArticleMetadata{PMID: pmid, Origin: ingest.OriginCSV}
		}

		if err := ingestOne(ctx, acts, cfg, path, meta); err != nil {
			failed++
			cmd.PrintErrf("failed %s: %v\n", path, err)
			continue
		}
		processed++
		cmd.Printf("ingested pmid=%d (%s)\n", pmid, path)
	}

	embedOut, err := acts.EmbedStaleActivity(ctx, activities.EmbedStaleInput{})
	if err != nil {
		return err
	}
	rebuildOut, err := acts.RebuildIndexActivity(ctx, activities.RebuildIndexInput{})
	if err != nil {
		return err
	}

	cmd.Printf("done: %d processed, %d failed, %d embedded, index has %d vectors\n",
		processed, failed, embedOut.Embedded, rebuildOut.VectorCount)
	return nil
}

func ingestOne(ctx context.Context, acts *activities.Activities, cfg config.Config, path string, meta ingest.ArticleMetadata) error {
	if _, err := acts.UpsertDocumentActivity(ctx, activities.UpsertDocumentInput{Meta: meta}); err != nil {
		return err
	}
	textOut, err := acts.ExtractTextActivity(ctx, activities.ExtractTextInput{DocumentPath: path})
	if err != nil {
		if errors.Is(err, util.ErrNoExtractableText) {
			return fmt.Errorf("no extractable text")
		}
		return err
	}
	if _, err := acts.ChunkDocumentActivity(ctx, activities.ChunkDocumentInput{
		PMID:         meta.PMID,
		Text:         textOut.Text,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}); err != nil {
		return err
	}
	return acts.MarkProcessedActivity(ctx, activities.MarkProcessedInput{PMID: meta.PMID})
}
