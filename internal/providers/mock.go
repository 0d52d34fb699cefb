package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// MockProvider returns deterministic vectors and canned answers. It keeps the
// whole pipeline runnable (and testable) without any model server.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	if len(req.Context) == 0 {
		return GenerateResponse{Text: "The retrieved context does not support an answer to this question."},
			ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
	}
	b := strings.Builder{}
	b.WriteString("Deterministic answer grounded in the retrieved passages.")
	for _, c := range req.Context {
		if tag := leadingTag(c); tag != "" {
			b.WriteString(" ")
			b.WriteString(tag)
		}
	}
	return GenerateResponse{Text: b.String()}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

// leadingTag pulls a "[PMID:n]" style marker off the front of a context
// snippet so mock answers cite the way real ones are instructed to.
func leadingTag(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return ""
	}
	end := strings.Index(s, "]")
	if end < 0 {
		return ""
	}
	return s[:end+1]
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return vec
}
