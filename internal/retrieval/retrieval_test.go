package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pubmedflo/internal/index"
	"pubmedflo/internal/models"
	"pubmedflo/internal/providers"
)

type memStore struct {
	rows []models.StoredEmbedding
	meta map[int64]models.ChunkMeta
}

func (s *memStore) LoadEmbeddings(_ context.Context, _ string) ([]models.StoredEmbedding, error) {
	return s.rows, nil
}

func (s *memStore) CountEmbeddings(_ context.Context, _ string) (int, error) {
	return len(s.rows), nil
}

func (s *memStore) ChunkMetadata(_ context.Context, chunkIDs []int64) (map[int64]models.ChunkMeta, error) {
	out := map[int64]models.ChunkMeta{}
	for _, id := range chunkIDs {
		if m, ok := s.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

type memAuditor struct {
	recs []models.QueryRecord
	err  error
}

func (a *memAuditor) RecordQuery(_ context.Context, rec models.QueryRecord) error {
	if a.err != nil {
		return a.err
	}
	a.recs = append(a.recs, rec)
	return nil
}

// corpusStore builds a three-article corpus whose embeddings come from
// the deterministic mock provider, so retrieval rankings are stable.
func corpusStore(t *testing.T, dim int) *memStore {
	t.Helper()
	mock := providers.NewMockProvider(dim)
	texts := map[int64]string{
		1: "aspirin inhibits cyclooxygenase",
		2: "aspirin reduces cardiovascular events",
		3: "statins lower ldl cholesterol",
		4: "metformin improves insulin sensitivity",
	}
	store := &memStore{meta: map[int64]models.ChunkMeta{
		1: {ChunkID: 1, DocID: 11, PMID: 101, Title: "Aspirin mechanisms", Text: texts[1]},
		2: {ChunkID: 2, DocID: 11, PMID: 101, Title: "Aspirin mechanisms", Text: texts[2]},
		3: {ChunkID: 3, DocID: 22, PMID: 202, Title: "Statin outcomes", Text: texts[3]},
		4: {ChunkID: 4, DocID: 33, PMID: 303, Title: "Metformin action", Text: texts[4]},
	}}
	for id := int64(1); id <= 4; id++ {
		vecs, _, err := mock.Embed(context.Background(), providers.EmbedRequest{
			Inputs: []string{texts[id]}, Dimension: dim,
		})
		require.NoError(t, err)
		store.rows = append(store.rows, models.StoredEmbedding{ChunkID: id, Vector: vecs[0]})
	}
	return store
}

func newTestRetriever(t *testing.T, store *memStore) *Retriever {
	t.Helper()
	mgr := index.NewManager(store, t.TempDir(), "mock-model", index.MetricCosine)
	require.NoError(t, mgr.Start(context.Background()))
	return NewRetriever(providers.NewMockProvider(8), 8, mgr, store)
}

func TestRetrieveReturnsRankedChunks(t *testing.T) {
	store := corpusStore(t, 8)
	r := newTestRetriever(t, store)

	results, err := r.Retrieve(context.Background(), "aspirin inhibits cyclooxygenase", 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The query matches chunk 1's text exactly, so the deterministic
	// embedding puts it first with a perfect cosine score.
	require.Equal(t, int64(1), results[0].ChunkID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.Equal(t, int64(101), results[0].PMID)
	require.Equal(t, "Aspirin mechanisms", results[0].Title)
	require.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	store := &memStore{meta: map[int64]models.ChunkMeta{}}
	r := newTestRetriever(t, store)

	results, err := r.Retrieve(context.Background(), "anything", 5, "")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRetrieveDropsChunksMissingMetadata(t *testing.T) {
	store := corpusStore(t, 8)
	delete(store.meta, 3)
	r := newTestRetriever(t, store)

	results, err := r.Retrieve(context.Background(), "statins lower ldl cholesterol", 4, "")
	require.NoError(t, err)
	for _, res := range results {
		require.NotEqual(t, int64(3), res.ChunkID)
	}
}

func TestCitationsDedupeByFirstRank(t *testing.T) {
	results := []models.RetrievedChunk{
		{ChunkID: 2, DocID: 11, PMID: 101, Title: "Aspirin mechanisms"},
		{ChunkID: 3, DocID: 22, PMID: 202, Title: "Statin outcomes"},
		{ChunkID: 1, DocID: 11, PMID: 101, Title: "Aspirin mechanisms"},
	}
	cites := Citations(results)
	require.Len(t, cites, 2)
	require.Equal(t, int64(101), cites[0].PMID)
	require.Equal(t, int64(202), cites[1].PMID)
}

func TestCitationsEmpty(t *testing.T) {
	require.Empty(t, Citations(nil))
}

type scriptedChain struct {
	providers []providers.LLMProvider
}

func (c *scriptedChain) PreferredLLMOrder() []int {
	order := make([]int, len(c.providers))
	for i := range order {
		order[i] = i
	}
	return order
}

func (c *scriptedChain) LLMProviderByIndex(i int) (providers.LLMProvider, providers.ProviderRef) {
	return c.providers[i], providers.ProviderRef{Name: "scripted"}
}

type erroringLLM struct{ err error }

func (p erroringLLM) Generate(context.Context, providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{}, providers.ProviderInfo{}, p.err
}

type slowLLM struct{}

func (slowLLM) Generate(ctx context.Context, _ providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	<-ctx.Done()
	return providers.GenerateResponse{}, providers.ProviderInfo{}, ctx.Err()
}

func sampleResults() []models.RetrievedChunk {
	return []models.RetrievedChunk{
		{ChunkID: 1, DocID: 11, PMID: 101, Title: "Aspirin mechanisms", Text: "aspirin inhibits cyclooxygenase"},
	}
}

func TestSynthesizerFailsOverToNextProvider(t *testing.T) {
	chain := &scriptedChain{providers: []providers.LLMProvider{
		erroringLLM{err: errors.New("rate limit exceeded")},
		providers.NewMockProvider(8),
	}}
	s := NewSynthesizer(chain, time.Second)

	answer := s.Answer(context.Background(), "how does aspirin work", sampleResults())
	require.NotNil(t, answer)
	require.Contains(t, *answer, "[PMID:101]")
}

func TestSynthesizerTimeoutYieldsNilAnswer(t *testing.T) {
	chain := &scriptedChain{providers: []providers.LLMProvider{slowLLM{}}}
	s := NewSynthesizer(chain, 20*time.Millisecond)

	answer := s.Answer(context.Background(), "how does aspirin work", sampleResults())
	require.Nil(t, answer)
}

func TestSynthesizerAllProvidersFail(t *testing.T) {
	chain := &scriptedChain{providers: []providers.LLMProvider{
		erroringLLM{err: errors.New("quota exceeded")},
		erroringLLM{err: errors.New("internal server error")},
	}}
	s := NewSynthesizer(chain, time.Second)

	require.Nil(t, s.Answer(context.Background(), "q", sampleResults()))
}

func TestSynthesizerNoResultsNoAnswer(t *testing.T) {
	s := NewSynthesizer(&scriptedChain{providers: []providers.LLMProvider{providers.NewMockProvider(8)}}, time.Second)
	require.Nil(t, s.Answer(context.Background(), "q", nil))
}

func newTestService(t *testing.T, store *memStore, chain llmChain, auditor Auditor) *Service {
	t.Helper()
	return NewService(newTestRetriever(t, store), NewSynthesizer(chain, time.Second), auditor)
}

func TestServiceRunWithAnswer(t *testing.T) {
	store := corpusStore(t, 8)
	auditor := &memAuditor{}
	chain := &scriptedChain{providers: []providers.LLMProvider{providers.NewMockProvider(8)}}
	svc := newTestService(t, store, chain, auditor)

	res, err := svc.Run(context.Background(), Request{
		QueryText:     "aspirin inhibits cyclooxygenase",
		K:             3,
		IncludeAnswer: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.NotNil(t, res.Answer)
	require.NotEmpty(t, res.Citations)
	require.NotEmpty(t, res.Retrieved)
	require.NotEmpty(t, res.QueryID)

	require.Len(t, auditor.recs, 1)
	require.Equal(t, res.QueryID, auditor.recs[0].QueryID)
	require.Equal(t, res.Answer, auditor.recs[0].Answer)
	require.NotEmpty(t, auditor.recs[0].DocIDs)
}

func TestServiceGenerationFailureKeepsRetrieval(t *testing.T) {
	store := corpusStore(t, 8)
	auditor := &memAuditor{}
	chain := &scriptedChain{providers: []providers.LLMProvider{erroringLLM{err: errors.New("boom")}}}
	svc := newTestService(t, store, chain, auditor)

	res, err := svc.Run(context.Background(), Request{
		QueryText:     "aspirin",
		K:             3,
		IncludeAnswer: true,
	})
	require.NoError(t, err)
	require.Nil(t, res.Answer)
	require.Equal(t, StatusNoAnswer, res.Status)
	require.NotEmpty(t, res.Retrieved)
	require.NotEmpty(t, res.Citations)

	require.Len(t, auditor.recs, 1)
	require.Nil(t, auditor.recs[0].Answer)
}

func TestServiceEmptyIndexStatus(t *testing.T) {
	store := &memStore{meta: map[int64]models.ChunkMeta{}}
	chain := &scriptedChain{providers: []providers.LLMProvider{providers.NewMockProvider(8)}}
	svc := newTestService(t, store, chain, &memAuditor{})

	res, err := svc.Run(context.Background(), Request{QueryText: "anything", IncludeAnswer: true})
	require.NoError(t, err)
	require.Equal(t, StatusNoResults, res.Status)
	require.Nil(t, res.Answer)
	require.Empty(t, res.Retrieved)
}

func TestServiceRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(t, corpusStore(t, 8), &scriptedChain{}, &memAuditor{})
	_, err := svc.Run(context.Background(), Request{QueryText: "   "})
	require.Error(t, err)
}

func TestServiceRejectsUnknownMetric(t *testing.T) {
	svc := newTestService(t, corpusStore(t, 8), &scriptedChain{}, &memAuditor{})
	_, err := svc.Run(context.Background(), Request{QueryText: "q", Metric: "manhattan"})
	require.Error(t, err)
}

func TestServiceAuditFailureDoesNotFailQuery(t *testing.T) {
	store := corpusStore(t, 8)
	chain := &scriptedChain{providers: []providers.LLMProvider{providers.NewMockProvider(8)}}
	svc := newTestService(t, store, chain, &memAuditor{err: errors.New("db down")})

	res, err := svc.Run(context.Background(), Request{QueryText: "aspirin", IncludeAnswer: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.Retrieved)
}
