package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pubmedflo/internal/config"
	"pubmedflo/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "pmflo",
	Short: "Biomedical article retrieval pipeline",
	Long:  "pmflo ingests PubMed articles, maintains their embeddings, and answers questions over the indexed corpus.",
}

func main() {
	_ = godotenv.Load(".env")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openDB(ctx context.Context, cfg config.Config) (*storage.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
