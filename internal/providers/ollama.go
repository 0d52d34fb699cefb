package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaProvider serves both embeddings and generation from a local Ollama
// instance. The embed model comes from config; the chat model may be set per
// alias (e.g. "ollama:llama3.2") or via PMFLO_OLLAMA_LLM_MODEL.
type OllamaProvider struct {
	alias      string
	embedModel string
	chatModel  string
	client     *api.Client
}

func NewOllamaProvider(alias, embedModel string) (*OllamaProvider, error) {
	base := strings.TrimSpace(os.Getenv("PMFLO_OLLAMA_BASE_URL"))
	if base == "" {
		base = "http://localhost:11434"
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url: %w", err)
	}
	return &OllamaProvider{
		alias:      alias,
		embedModel: embedModel,
		chatModel:  resolveOllamaChatModel(alias),
		client:     api.NewClient(u, http.DefaultClient),
	}, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
			Model:  o.embedModel,
			Prompt: text,
		})
		if err != nil {
			return nil, info, fmt.Errorf("ollama embedding request failed: %w", err)
		}
		if len(resp.Embedding) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding")
		}
		vec := make([]float32, len(resp.Embedding))
		for i, x := range resp.Embedding {
			vec[i] = float32(x)
		}
		out = append(out, matchDimension(vec, req.Dimension))
	}
	return out, info, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.chatModel, Key: o.alias}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt = prompt + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	genReq := api.GenerateRequest{
		Model:  o.chatModel,
		Prompt: prompt,
		Options: map[string]any{
			"temperature": 0.1,
		},
	}
	b := strings.Builder{}
	err := o.client.Generate(ctx, &genReq, func(resp api.GenerateResponse) error {
		_, werr := b.WriteString(resp.Response)
		return werr
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate failed: %w", err)
	}
	return GenerateResponse{Text: b.String()}, info, nil
}

func resolveOllamaChatModel(alias string) string {
	alias = strings.TrimSpace(alias)
	// A direct model name in the provider list wins: ollama:llama3.2
	if alias != "" && alias != "default" {
		return alias
	}
	if v := strings.TrimSpace(os.Getenv("PMFLO_OLLAMA_LLM_MODEL")); v != "" {
		return v
	}
	return "llama3.2"
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
