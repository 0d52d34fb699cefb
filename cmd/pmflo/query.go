package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"pubmedflo/internal/config"
	"pubmedflo/internal/index"
	"pubmedflo/internal/providers"
	"pubmedflo/internal/retrieval"
	"pubmedflo/internal/storage"
)

var (
	queryK      int
	queryAnswer bool
	queryMetric string
	queryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question over the indexed corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", retrieval.DefaultK, "number of chunks to retrieve")
	queryCmd.Flags().BoolVar(&queryAnswer, "answer", true, "synthesize an answer from the retrieved chunks")
	queryCmd.Flags().StringVar(&queryMetric, "metric", "", "similarity metric override: cosine, euclidean, or ip")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the full result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pm, err := providers.NewManager(cfg)
	if err != nil {
		return err
	}
	metric, err := index.ParseMetric(cfg.Metric)
	if err != nil {
		return err
	}

	embRepo := storage.NewEmbeddingRepo(db)
	indexMgr := index.NewManager(embRepo, cfg.ArtifactDir, cfg.EmbedModel, metric)
	if err := indexMgr.Start(ctx); err != nil {
		return err
	}

	svc := retrieval.NewService(
		retrieval.NewRetriever(pm.FirstEmbedProvider(), cfg.EmbedDim, indexMgr, storage.NewChunkRepo(db)),
		retrieval.NewSynthesizer(pm, time.Duration(cfg.GenerateTimeoutSecs)*time.Second),
		storage.NewQueryLogRepo(db),
	)

	result, err := svc.Run(ctx, retrieval.Request{
		QueryText:     args[0],
		K:             queryK,
		IncludeAnswer: queryAnswer,
		Metric:        queryMetric,
	})
	if err != nil {
		return err
	}

	if queryJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	if result.Answer != nil {
		cmd.Println(*result.Answer)
	} else {
		cmd.Println(result.Status)
	}
	if len(result.Citations) > 0 {
		cmd.Println("\nCitations:")
		for _, c := range result.Citations {
			cmd.Printf("  [PMID:%d] %s\n", c.PMID, c.Title)
		}
	}
	cmd.Println("\nRetrieved chunks:")
	for i, rc := range result.Retrieved {
		cmd.Printf("  %d. pmid=%d score=%.4f %s\n", i+1, rc.PMID, rc.Score, truncate(rc.Text, 120))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
