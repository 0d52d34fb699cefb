package main

import (
	"log"
	"net/http"

	"pubmedflo/internal/api"
	"pubmedflo/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	h := api.NewServer(cfg)
	log.Printf("pubmedflo api listening on %s embed_model=%q metric=%q", cfg.APIAddr, cfg.EmbedModel, cfg.Metric)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
