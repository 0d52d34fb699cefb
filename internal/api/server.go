package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pubmedflo/internal/config"
	"pubmedflo/internal/index"
	"pubmedflo/internal/ingest"
	"pubmedflo/internal/models"
	"pubmedflo/internal/providers"
	"pubmedflo/internal/retrieval"
	"pubmedflo/internal/storage"
	"pubmedflo/internal/util"
	"pubmedflo/internal/workflows"

	"github.com/google/uuid"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg      config.Config
	db       *storage.DB
	docRepo  *storage.DocumentRepo
	queries  *retrieval.Service
	temporal tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	metric, err := index.ParseMetric(cfg.Metric)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}

	embRepo := storage.NewEmbeddingRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	indexMgr := index.NewManager(embRepo, cfg.ArtifactDir, cfg.EmbedModel, metric)
	if err := indexMgr.Start(ctx); err != nil {
		panic(err)
	}

	retriever := retrieval.NewRetriever(pm.FirstEmbedProvider(), cfg.EmbedDim, indexMgr, chunkRepo)
	synthesizer := retrieval.NewSynthesizer(pm, time.Duration(cfg.GenerateTimeoutSecs)*time.Second)
	queries := retrieval.NewService(retriever, synthesizer, storage.NewQueryLogRepo(db))

	return &Server{
		cfg:      cfg,
		db:       db,
		docRepo:  storage.NewDocumentRepo(db),
		queries:  queries,
		temporal: tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/corpus/ingest", s.handleCorpusIngest)
	mux.HandleFunc("/reindex", s.handleReindex)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		QueryText     string `json:"query_text"`
		K             int    `json:"k"`
		IncludeAnswer bool   `json:"include_answer"`
		Metric        string `json:"metric"`
		UserID        *int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.QueryText) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query_text is required"))
		return
	}
	if req.Metric != "" {
		if _, err := index.ParseMetric(req.Metric); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := s.queries.Run(r.Context(), retrieval.Request{
		QueryText:     req.QueryText,
		K:             req.K,
		IncludeAnswer: req.IncludeAnswer,
		Metric:        req.Metric,
		UserID:        req.UserID,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse(result))
}

func queryResponse(res models.QueryResult) map[string]any {
	citations := make([]map[string]any, 0, len(res.Citations))
	for _, c := range res.Citations {
		citations = append(citations, map[string]any{
			"pmid":        c.PMID,
			"document_id": c.DocID,
			"title":       c.Title,
		})
	}
	retrieved := make([]map[string]any, 0, len(res.Retrieved))
	for _, rc := range res.Retrieved {
		retrieved = append(retrieved, map[string]any{
			"chunk_id":    rc.ChunkID,
			"document_id": rc.DocID,
			"pmid":        rc.PMID,
			"score":       rc.Score,
			"title":       rc.Title,
			"text":        rc.Text,
		})
	}
	return map[string]any{
		"query_id":         res.QueryID,
		"answer":           res.Answer,
		"status":           res.Status,
		"citations":        citations,
		"retrieved_chunks": retrieved,
	}
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.docRepo.ListDocuments(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	meta, err := ingest.FromForm(r.FormValue("pmid"), r.FormValue("title"), r.FormValue("source_url"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	fh := fhs[0]
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".pdf" && ext != ".txt" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unsupported file type %q", ext))
		return
	}

	savedPath, err := s.saveUpload(fh, meta.PMID, ext)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	workflowID := fmt.Sprintf("ingest-pmid-%d", meta.PMID)
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocumentPath: savedPath,
		Meta:         meta,
		ChunkSize:    s.cfg.ChunkSize,
		ChunkOverlap: s.cfg.ChunkOverlap,
	})
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("start ingest workflow: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"pmid":        meta.PMID,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) saveUpload(fh *multipart.FileHeader, pmid int64, ext string) (string, error) {
	if err := util.EnsureDir(s.cfg.DataInRoot); err != nil {
		return "", err
	}
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dstPath := util.SafeJoin(s.cfg.DataInRoot, fmt.Sprintf("%d%s", pmid, ext))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create upload target: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return dstPath, nil
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	pmid, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || pmid <= 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("bad pmid %q", rest))
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.docRepo.GetByPMID(r.Context(), pmid)
		if err == storage.ErrDocumentNotFound {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if _, err := s.docRepo.GetByPMID(r.Context(), pmid); err != nil {
			if err == storage.ErrDocumentNotFound {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:        fmt.Sprintf("delete-pmid-%d-%s", pmid, uuid.NewString()[:8]),
			TaskQueue: s.cfg.TemporalTaskQueue,
		}, workflows.DocumentDeleteWorkflow, workflows.DocumentDeleteInput{PMID: pmid})
		if err != nil {
			writeErr(w, http.StatusBadGateway, fmt.Errorf("start delete workflow: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"pmid":        pmid,
			"workflow_id": we.GetID(),
			"run_id":      we.GetRunID(),
		})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

// handleCorpusIngest kicks off a batch ingest of a server-side directory.
// The worker fans the files out to child workflows and rebuilds the index
// once at the end.
func (s *Server) handleCorpusIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		InputDir    string `json:"input_dir"`
		MetadataCSV string `json:"metadata_csv"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.InputDir) == "" {
		req.InputDir = s.cfg.DataInRoot
	}

	runID := uuid.NewString()[:8]
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "corpus-ingest-" + runID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.CorpusIngestWorkflow, workflows.CorpusIngestInput{
		RunID:                 runID,
		InputDir:              req.InputDir,
		MetadataCSV:           req.MetadataCSV,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
		ChunkSize:             s.cfg.ChunkSize,
		ChunkOverlap:          s.cfg.ChunkOverlap,
	})
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("start corpus ingest workflow: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      runID,
		"workflow_id": we.GetID(),
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Metric string `json:"metric"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Metric != "" {
		if _, err := index.ParseMetric(req.Metric); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "reindex-" + uuid.NewString()[:8],
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.CorpusReindexWorkflow, workflows.ReindexInput{Metric: req.Metric})
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("start reindex workflow: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

type apiError struct {
	Code    string
	Message string
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "PF-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "PF-DB-5002", Message: "A backing service is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "PF-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		if err != nil {
			msg = err.Error()
		}
		return apiError{Code: "PF-API-4001", Message: msg}
	case status == http.StatusNotFound:
		return apiError{Code: "PF-API-4004", Message: "Requested resource was not found."}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "PF-API-4005", Message: "This endpoint does not support the requested method."}
	default:
		return apiError{Code: "PF-API-4000", Message: "Request failed."}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
