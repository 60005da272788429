// document_repository.go implements DocumentRepository, providing pgvector-backed
// storage and cosine similarity search over embedded document chunks.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/grooshub/grooshub/internal/db/models"
)

// DocumentRepository handles database operations for embedded document chunks
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// StoreChunks replaces all chunks for a file in a single transaction. Re-indexing
// a file must never leave a mix of old and new chunks behind.
func (r *DocumentRepository) StoreChunks(ctx context.Context, fileID string, chunks []*models.DocumentChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to clear existing chunks: %w", err)
	}

	query := `
		INSERT INTO document_chunks (file_id, project_id, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, chunk := range chunks {
		_, err = tx.ExecContext(ctx, query,
			chunk.FileID,
			chunk.ProjectID,
			chunk.ChunkIndex,
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

// DeleteByFile removes all chunks belonging to a file
func (r *DocumentRepository) DeleteByFile(ctx context.Context, fileID string) error {
	query := `DELETE FROM document_chunks WHERE file_id = $1`
	_, err := r.db.ExecContext(ctx, query, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

// Search returns the chunks nearest to the query embedding within a project,
// ordered by cosine distance ascending.
func (r *DocumentRepository) Search(ctx context.Context, projectID string, embedding []float32, limit int) ([]*models.ChunkMatch, error) {
	query := `
		SELECT dc.id, dc.file_id, COALESCE(f.name, '') AS file_name, dc.content,
		       dc.embedding <=> $2 AS distance
		FROM document_chunks dc
		LEFT JOIN files f ON dc.file_id = f.id
		WHERE dc.project_id = $1
		ORDER BY dc.embedding <=> $2
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.ChunkMatch, 0)
	for rows.Next() {
		match := &models.ChunkMatch{}
		err := rows.Scan(
			&match.ChunkID,
			&match.FileID,
			&match.FileName,
			&match.Content,
			&match.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// CountByProject returns the number of stored chunks for a project
func (r *DocumentRepository) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM document_chunks WHERE project_id = $1`
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}

	return count, nil
}
