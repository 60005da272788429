// Package jobs contains the background workers that run alongside the HTTP
// server: the RAG indexer that embeds uploaded documents, and the periodic
// cleanup of expired invitations and aged usage/audit rows.
//
// All workers are started with a context and stop when it is cancelled. They
// run in safego goroutines so a panic in one worker never takes down the
// process.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/grooshub/grooshub/internal/ai"
	"github.com/grooshub/grooshub/internal/config"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/rag"
	"github.com/grooshub/grooshub/internal/safego"
	"github.com/grooshub/grooshub/internal/storage"
	"github.com/grooshub/grooshub/internal/telemetry"
)

const (
	// indexBatchSize bounds how many files one indexer pass claims.
	indexBatchSize = 10

	// perFileTimeout bounds a single download+embed+store cycle.
	perFileTimeout = 2 * time.Minute

	// stuckInterval is the Postgres interval after which an 'indexing' file is
	// assumed orphaned by a crashed worker and returned to 'pending'.
	stuckInterval = "10 minutes"
)

// Indexer is the background worker that turns pending uploaded files into
// embedded document chunks in the vector index.
type Indexer struct {
	files    *repositories.FileRepository
	docs     *repositories.DocumentRepository
	store    storage.Storage
	chunker  *rag.Chunker
	embedder *ai.Embedder
	interval time.Duration
}

// NewIndexer creates the indexer worker.
func NewIndexer(
	files *repositories.FileRepository,
	docs *repositories.DocumentRepository,
	store storage.Storage,
	chunker *rag.Chunker,
	embedder *ai.Embedder,
	cfg *config.RAGConfig,
) *Indexer {
	interval := time.Duration(cfg.IndexIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Indexer{
		files:    files,
		docs:     docs,
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		interval: interval,
	}
}

// Start launches the indexing loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (i *Indexer) Start(ctx context.Context) {
	safego.Go(func() {
		slog.Info("starting document indexer", "interval", i.interval)
		ticker := time.NewTicker(i.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("document indexer stopped")
				return
			case <-ticker.C:
				i.runOnce(ctx)
			}
		}
	})
}

// runOnce claims a batch of pending files and indexes each one. Failures are
// recorded on the file row and never abort the batch.
func (i *Indexer) runOnce(ctx context.Context) {
	if reset, err := i.files.ResetStuckIndexing(ctx, stuckInterval); err != nil {
		slog.Error("failed to reset stuck files", "error", err)
	} else if reset > 0 {
		slog.Warn("reset stuck indexing files back to pending", "count", reset)
	}

	files, err := i.files.ClaimPending(ctx, indexBatchSize)
	if err != nil {
		slog.Error("failed to claim pending files", "error", err)
		return
	}

	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		if err := i.indexFile(ctx, f); err != nil {
			slog.Error("failed to index file", "file_id", f.ID, "name", f.Name, "error", err)
			telemetry.DocumentsIndexedTotal.WithLabelValues("error").Inc()
			if statusErr := i.files.SetIndexStatus(ctx, f.ID, models.IndexStatusFailed, err.Error()); statusErr != nil {
				slog.Error("failed to mark file as failed", "file_id", f.ID, "error", statusErr)
			}
			continue
		}
		telemetry.DocumentsIndexedTotal.WithLabelValues("ok").Inc()
	}
}

// indexFile downloads one file, chunks and embeds its content, and replaces
// its chunks in the vector index.
func (i *Indexer) indexFile(ctx context.Context, f *models.File) error {
	ctx, cancel := context.WithTimeout(ctx, perFileTimeout)
	defer cancel()

	reader, err := i.store.Download(ctx, f.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read file content: %w", err)
	}

	texts := i.chunker.Chunk(string(content))
	if len(texts) == 0 {
		// Empty or whitespace-only file: nothing to index, but not an error.
		if err := i.files.SetIndexStatus(ctx, f.ID, models.IndexStatusIndexed, ""); err != nil {
			return fmt.Errorf("failed to mark empty file as indexed: %w", err)
		}
		return nil
	}

	vectors, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	chunks := make([]*models.DocumentChunk, len(texts))
	for idx, text := range texts {
		chunks[idx] = &models.DocumentChunk{
			FileID:     f.ID,
			ProjectID:  f.ProjectID,
			ChunkIndex: idx,
			Content:    text,
			Embedding:  vectors[idx],
		}
	}

	// Re-indexing an updated file replaces its previous chunks.
	if err := i.docs.DeleteByFile(ctx, f.ID); err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}
	if err := i.docs.StoreChunks(ctx, f.ID, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := i.files.SetIndexStatus(ctx, f.ID, models.IndexStatusIndexed, ""); err != nil {
		return fmt.Errorf("failed to mark file as indexed: %w", err)
	}

	telemetry.ChunksStoredTotal.Add(float64(len(chunks)))
	slog.Info("indexed file", "file_id", f.ID, "name", f.Name, "chunks", len(chunks))
	return nil
}
