package main

import (
	"context"

	"github.com/spf13/cobra"

	"pubmedflo/internal/activities"
	"pubmedflo/internal/config"
	"pubmedflo/internal/index"
)

var reindexMetric string

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Embed stale chunks and rebuild the similarity index",
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().StringVar(&reindexMetric, "metric", "", "similarity metric: cosine, euclidean, or ip (default from config)")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg := config.Load()
	if reindexMetric != "" {
		if _, err := index.ParseMetric(reindexMetric); err != nil {
			return err
		}
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	acts, err := activities.New(cfg, db)
	if err != nil {
		return err
	}

	embedOut, err := acts.EmbedStaleActivity(ctx, activities.EmbedStaleInput{})
	if err != nil {
		return err
	}
	rebuildOut, err := acts.RebuildIndexActivity(ctx, activities.RebuildIndexInput{Metric: reindexMetric})
	if err != nil {
		return err
	}

	cmd.Printf("embedded %d chunks, index rebuilt with %d vectors\n", embedOut.Embedded, rebuildOut.VectorCount)
	return nil
}
