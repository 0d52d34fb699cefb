package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"pubmedflo/internal/index"
	"pubmedflo/internal/models"
)

const (
	StatusOK             = "ok"
	StatusNoResults      = "no indexed content matched the query"
	StatusNoAnswer       = "answer generation unavailable; retrieval results returned without synthesis"
	StatusAnswerWithheld = "answer synthesis not requested"
)

// Auditor persists one record per answered query.
type Auditor interface {
	RecordQuery(ctx context.Context, rec models.QueryRecord) error
}

// Request is one question against the corpus.
type Request struct {
	QueryText     string
	K             int
	IncludeAnswer bool
	Metric        string
	UserID        *int64
}

// Service runs the full online pipeline: retrieve, cite, synthesize, audit.
type Service struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	auditor     Auditor
}

func NewService(retriever *Retriever, synthesizer *Synthesizer, auditor Auditor) *Service {
	return &Service{retriever: retriever, synthesizer: synthesizer, auditor: auditor}
}

func (s *Service) Run(ctx context.Context, req Request) (models.QueryResult, error) {
	queryText := strings.TrimSpace(req.QueryText)
	if queryText == "" {
		return models.QueryResult{}, fmt.Errorf("query text is empty")
	}

	var metric index.Metric
	if req.Metric != "" {
		m, err := index.ParseMetric(req.Metric)
		if err != nil {
			return models.QueryResult{}, err
		}
		metric = m
	}

	result := models.QueryResult{QueryID: uuid.NewString()}

	retrieved, err := s.retriever.Retrieve(ctx, queryText, req.K, metric)
	if err != nil {
		return models.QueryResult{}, err
	}
	result.Retrieved = retrieved
	result.Citations = Citations(retrieved)

	switch {
	case len(retrieved) == 0:
		result.Status = StatusNoResults
	case !req.IncludeAnswer:
		result.Status = StatusAnswerWithheld
	default:
		result.Answer = s.synthesizer.Answer(ctx, queryText, retrieved)
		if result.Answer == nil {
			result.Status = StatusNoAnswer
		} else {
			result.Status = StatusOK
		}
	}

	s.audit(ctx, queryText, req.UserID, result)
	return result, nil
}

func (s *Service) audit(ctx context.Context, queryText string, userID *int64, result models.QueryResult) {
	if s.auditor == nil {
		return
	}
	docIDs := make([]int64, 0, len(result.Citations))
	for _, c := range result.Citations {
		docIDs = append(docIDs, c.DocID)
	}
	rec := models.QueryRecord{
		QueryID:   result.QueryID,
		QueryText: queryText,
		Answer:    result.Answer,
		UserID:    userID,
		DocIDs:    docIDs,
	}
	if err := s.auditor.RecordQuery(ctx, rec); err != nil {
		log.Printf("query %s: audit record failed: %v", result.QueryID, err)
	}
}
