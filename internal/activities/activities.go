package activities

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pubmedflo/internal/chunker"
	"pubmedflo/internal/config"
	"pubmedflo/internal/embed"
	"pubmedflo/internal/index"
	"pubmedflo/internal/ingest"
	"pubmedflo/internal/models"
	"pubmedflo/internal/providers"
	"pubmedflo/internal/storage"
	"pubmedflo/internal/util"

	"github.com/ledongthuc/pdf"
)

type Activities struct {
	cfg       config.Config
	docRepo   *storage.DocumentRepo
	chunkRepo *storage.ChunkRepo
	embRepo   *storage.EmbeddingRepo
	generator *embed.Generator
	indexMgr  *index.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	metric, err := index.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	embRepo := storage.NewEmbeddingRepo(db)
	return &Activities{
		cfg:       cfg,
		docRepo:   storage.NewDocumentRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		embRepo:   embRepo,
		generator: embed.NewGenerator(pm.FirstEmbedProvider(), cfg.EmbedModel, cfg.EmbedDim,
			cfg.EmbedBatchSize, cfg.EmbedMaxParallel, embRepo, embRepo),
		indexMgr: index.NewManager(embRepo, cfg.ArtifactDir, cfg.EmbedModel, metric),
	}, nil
}

func (a *Activities) ListSourceFilesActivity(ctx context.Context, in ListSourceFilesInput) (ListSourceFilesOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListSourceFilesOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf", ".txt":
			paths = append(paths, filepath.Join(in.InputDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return ListSourceFilesOutput{Paths: paths}, nil
}

func (a *Activities) LoadMetadataActivity(ctx context.Context, in LoadMetadataInput) (LoadMetadataOutput, error) {
	_ = ctx
	f, err := os.Open(in.CSVPath)
	if err != nil {
		return LoadMetadataOutput{}, fmt.Errorf("open metadata csv: %w", err)
	}
	defer f.Close()
	rows, err := ingest.ParseCSV(f)
	if err != nil {
		return LoadMetadataOutput{}, err
	}
	return LoadMetadataOutput{Rows: rows}, nil
}

func (a *Activities) UpsertDocumentActivity(ctx context.Context, in UpsertDocumentInput) (UpsertDocumentOutput, error) {
	if err := in.Meta.Validate(); err != nil {
		return UpsertDocumentOutput{}, err
	}
	docID, err := a.docRepo.UpsertDocument(ctx, models.Document{
		PMID:      in.Meta.PMID,
		Title:     in.Meta.Title,
		SourceURL: in.Meta.SourceURL,
		AddedBy:   in.AddedBy,
	})
	if err != nil {
		return UpsertDocumentOutput{}, err
	}
	return UpsertDocumentOutput{DocID: docID}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	var text string
	switch strings.ToLower(filepath.Ext(in.DocumentPath)) {
	case ".pdf":
		extracted, err := extractPDFText(in.DocumentPath)
		if err != nil {
			return ExtractTextOutput{}, err
		}
		text = extracted
	case ".txt":
		raw, err := os.ReadFile(in.DocumentPath)
		if err != nil {
			return ExtractTextOutput{}, fmt.Errorf("read text file: %w", err)
		}
		text = string(raw)
	default:
		return ExtractTextOutput{}, fmt.Errorf("unsupported document type %q", filepath.Ext(in.DocumentPath))
	}

	text = util.SanitizeText(strings.TrimSpace(text))
	if text == "" {
		return ExtractTextOutput{}, util.ErrNoExtractableText
	}
	return ExtractTextOutput{Text: text}, nil
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}

func (a *Activities) ChunkDocumentActivity(ctx context.Context, in ChunkDocumentInput) (ChunkDocumentOutput, error) {
	size := in.ChunkSize
	if size <= 0 {
		size = a.cfg.ChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = a.cfg.ChunkOverlap
	}

	normalized := chunker.Normalize(in.Text)
	parts := chunker.Split(normalized, size, overlap)
	chunks := make([]models.TextChunk, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, models.TextChunk{
			PMID:        in.PMID,
			ChunkIndex:  p.Index,
			Text:        p.Text,
			StartOffset: p.StartOffset,
			EndOffset:   p.EndOffset,
			ContentHash: p.ContentHash,
		})
	}
	if err := a.chunkRepo.ReplaceChunks(ctx, in.PMID, chunks); err != nil {
		return ChunkDocumentOutput{}, err
	}
	return ChunkDocumentOutput{ChunkCount: len(chunks)}, nil
}

func (a *Activities) EmbedStaleActivity(ctx context.Context, in EmbedStaleInput) (EmbedStaleOutput, error) {
	_ = in
	n, err := a.generator.Run(ctx)
	if err != nil {
		return EmbedStaleOutput{}, err
	}
	return EmbedStaleOutput{Embedded: n}, nil
}

func (a *Activities) RebuildIndexActivity(ctx context.Context, in RebuildIndexInput) (RebuildIndexOutput, error) {
	metric := index.Metric(in.Metric)
	if in.Metric != "" {
		parsed, err := index.ParseMetric(in.Metric)
		if err != nil {
			return RebuildIndexOutput{}, err
		}
		metric = parsed
	}
	art, err := a.indexMgr.Rebuild(ctx, metric)
	if err != nil {
		return RebuildIndexOutput{}, err
	}
	return RebuildIndexOutput{VectorCount: art.Meta.VectorCount}, nil
}

func (a *Activities) MarkProcessedActivity(ctx context.Context, in MarkProcessedInput) error {
	return a.docRepo.MarkProcessed(ctx, in.PMID)
}

func (a *Activities) DeleteDocumentActivity(ctx context.Context, in DeleteDocumentInput) error {
	return a.docRepo.DeleteByPMID(ctx, in.PMID)
}

func (a *Activities) WriteIngestSummaryActivity(ctx context.Context, in WriteIngestSummaryInput) error {
	_ = ctx
	outPath := filepath.Join(a.cfg.ArtifactDir, "runs", in.RunID, "ingest_summary.json")
	return util.WriteJSONAtomic(outPath, in.Summary)
}
