package rag

import (
	"context"
	"fmt"

	"github.com/grooshub/grooshub/internal/ai"
	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
)

const defaultTopK = 6

// Retriever answers "which indexed chunks are relevant to this query" by
// embedding the query and running a cosine-distance search scoped to one
// project.
type Retriever struct {
	embedder *ai.Embedder
	docs     *repositories.DocumentRepository
	topK     int
}

// NewRetriever creates a retriever over the project document index.
func NewRetriever(embedder *ai.Embedder, docs *repositories.DocumentRepository, cfg *config.RAGConfig) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Retriever{embedder: embedder, docs: docs, topK: topK}
}

// Retrieve returns the topK most similar chunks for the query within the
// project, ordered most similar first.
func (r *Retriever) Retrieve(ctx context.Context, projectID, query string) ([]*models.ChunkMatch, error) {
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := r.docs.Search(ctx, projectID, embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search document chunks: %w", err)
	}
	return matches, nil
}
