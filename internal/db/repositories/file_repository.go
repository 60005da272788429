// file_repository.go implements FileRepository, providing database queries for
// uploaded file metadata and the RAG indexing lifecycle.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grooshub/grooshub/internal/db/models"
)

// FileRepository handles database operations for file metadata
type FileRepository struct {
	db *sql.DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// GetByID retrieves a file by ID
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `
		SELECT id, project_id, uploaded_by, name, storage_path, content_type,
		       size_bytes, checksum, index_status, index_error, created_at, updated_at
		FROM files
		WHERE id = $1
	`

	file := &models.File{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&file.ID,
		&file.ProjectID,
		&file.UploadedBy,
		&file.Name,
		&file.StoragePath,
		&file.ContentType,
		&file.SizeBytes,
		&file.Checksum,
		&file.IndexStatus,
		&file.IndexError,
		&file.CreatedAt,
		&file.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}

// Create records a newly uploaded file
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (project_id, uploaded_by, name, storage_path, content_type, size_bytes, checksum, index_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		file.ProjectID,
		file.UploadedBy,
		file.Name,
		file.StoragePath,
		file.ContentType,
		file.SizeBytes,
		file.Checksum,
		file.IndexStatus,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// Delete removes a file's metadata row. The caller is responsible for deleting
// the blob from storage first.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// ListByProject retrieves a paginated list of files in a project
func (r *FileRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*models.File, error) {
	query := `
		SELECT id, project_id, uploaded_by, name, storage_path, content_type,
		       size_bytes, checksum, index_status, index_error, created_at, updated_at
		FROM files
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.File, 0)
	for rows.Next() {
		file := &models.File{}
		err := rows.Scan(
			&file.ID,
			&file.ProjectID,
			&file.UploadedBy,
			&file.Name,
			&file.StoragePath,
			&file.ContentType,
			&file.SizeBytes,
			&file.Checksum,
			&file.IndexStatus,
			&file.IndexError,
			&file.CreatedAt,
			&file.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// CountByProject returns the number of files in a project
func (r *FileRepository) CountByProject(ctx context.Context, projectID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM files WHERE project_id = $1`
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return count, nil
}

// === Indexing Lifecycle Operations ===

// ClaimPending atomically moves up to limit pending files to 'indexing' and
// returns them. SKIP LOCKED keeps concurrent indexer runs from claiming the
// same file twice.
func (r *FileRepository) ClaimPending(ctx context.Context, limit int) ([]*models.File, error) {
	query := `
		UPDATE files
		SET index_status = 'indexing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM files
			WHERE index_status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, project_id, uploaded_by, name, storage_path, content_type,
		          size_bytes, checksum, index_status, index_error, created_at, updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.File, 0)
	for rows.Next() {
		file := &models.File{}
		err := rows.Scan(
			&file.ID,
			&file.ProjectID,
			&file.UploadedBy,
			&file.Name,
			&file.StoragePath,
			&file.ContentType,
			&file.SizeBytes,
			&file.Checksum,
			&file.IndexStatus,
			&file.IndexError,
			&file.CreatedAt,
			&file.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed file: %w", err)
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// SetIndexStatus records the outcome of an indexing attempt
func (r *FileRepository) SetIndexStatus(ctx context.Context, id, status, indexError string) error {
	query := `
		UPDATE files
		SET index_status = $2, index_error = $3, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, status, indexError)
	if err != nil {
		return fmt.Errorf("failed to set index status: %w", err)
	}

	return nil
}

// ResetStuckIndexing moves files that have been 'indexing' for longer than the
// given interval back to 'pending'. Recovers work lost to a crashed indexer.
func (r *FileRepository) ResetStuckIndexing(ctx context.Context, olderThan string) (int64, error) {
	query := `
		UPDATE files
		SET index_status = 'pending', updated_at = NOW()
		WHERE index_status = 'indexing' AND updated_at < NOW() - $1::interval
	`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck files: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset files: %w", err)
	}

	return affected, nil
}
