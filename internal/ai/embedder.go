package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"

	"github.com/grooshub/grooshub/internal/telemetry"
)

// Embedder wraps the configured Genkit embedder behind a float32-slice API so
// callers do not depend on Genkit document types. Batch requests pass through
// a proactive rate limiter so the background indexer cannot exhaust the
// provider's embedding quota.
type Embedder struct {
	embedder ai.Embedder
	provider string
	limiter  *rate.Limiter
}

// Embedder looks up the embedder registered by the configured provider plugin.
// Only googleai and openai expose embedding models; routing a chat-only
// provider here is a configuration error.
func (p *Provider) Embedder() (*Embedder, error) {
	provider, model, err := ParseModel(p.cfg.EmbedderModel)
	if err != nil {
		return nil, err
	}

	var e ai.Embedder
	switch provider {
	case ProviderGoogleAI:
		e = googlegenai.GoogleAIEmbedder(p.def, model)
	case ProviderOpenAI:
		e = genkit.LookupEmbedder(p.def, api.NewName(ProviderOpenAI, model))
	default:
		return nil, fmt.Errorf("%w: provider %q has no embedding models", ErrUnknownProvider, provider)
	}
	if e == nil {
		return nil, fmt.Errorf("embedder %q not registered (missing provider API key?)", p.cfg.EmbedderModel)
	}

	return &Embedder{
		embedder: e,
		provider: provider,
		limiter:  rate.NewLimiter(10, 30),
	}, nil
}

// EmbedTexts embeds a batch of texts and returns one vector per input, in
// input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limit wait cancelled: %w", err)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	start := time.Now()
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	ObserveModelCall(e.provider, "embed", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// ObserveModelCall records one upstream model invocation in the Prometheus
// counters. kind is "chat", "classify", or "embed".
func ObserveModelCall(provider, kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.ModelCallsTotal.WithLabelValues(provider, kind, outcome).Inc()
	telemetry.ModelCallDuration.WithLabelValues(provider, kind).Observe(time.Since(start).Seconds())
}
