package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"pubmedflo/internal/models"
	"pubmedflo/internal/providers"
)

// llmChain is the provider failover order. *providers.Manager satisfies it.
type llmChain interface {
	PreferredLLMOrder() []int
	LLMProviderByIndex(i int) (providers.LLMProvider, providers.ProviderRef)
}

// Synthesizer turns retrieved chunks into a grounded answer. Generation
// is best effort: every failure path returns a nil answer and leaves the
// retrieval results for the caller to serve on their own.
type Synthesizer struct {
	chain   llmChain
	timeout time.Duration
}

func NewSynthesizer(chain llmChain, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synthesizer{chain: chain, timeout: timeout}
}

// Answer asks each provider in preference order until one produces text.
func (s *Synthesizer) Answer(ctx context.Context, question string, results []models.RetrievedChunk) *string {
	if len(results) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := providers.GenerateRequest{
		Operation: "answer_synthesis",
		Prompt:    answerPrompt(question),
		Context:   contextSnippets(results),
	}
	for _, i := range s.chain.PreferredLLMOrder() {
		provider, ref := s.chain.LLMProviderByIndex(i)
		resp, info, err := provider.Generate(ctx, req)
		if err != nil {
			log.Printf("synthesize: provider %s failed (%s): %v", ref.Name, providers.ClassifyError(err), err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			log.Printf("synthesize: provider %s returned empty text", info.Name)
			continue
		}
		return &text
	}
	return nil
}

func answerPrompt(question string) string {
	var b strings.Builder
	b.WriteString("You are answering a biomedical question from retrieved article passages.\n")
	b.WriteString("Use only the passages provided. Cite the supporting article inline with its PMID tag, e.g. [PMID:12345].\n")
	b.WriteString("If the passages do not contain the answer, say that the indexed articles do not cover it.\n\n")
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func contextSnippets(results []models.RetrievedChunk) []string {
	snippets := make([]string, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "untitled"
		}
		snippets[i] = fmt.Sprintf("[PMID:%d] %s\n%s", r.PMID, title, r.Text)
	}
	return snippets
}
