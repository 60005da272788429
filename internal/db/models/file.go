// Package models - file.go defines the File model tracking uploaded objects and
// their RAG indexing lifecycle.
package models

import "time"

// File index statuses. A file enters 'pending' at upload time if its content
// type is text-extractable; the background indexer moves it through
// 'indexing' to 'indexed' or 'failed'. Binary files stay 'skipped'.
const (
	IndexStatusSkipped  = "skipped"
	IndexStatusPending  = "pending"
	IndexStatusIndexing = "indexing"
	IndexStatusIndexed  = "indexed"
	IndexStatusFailed   = "failed"
)

// File is the metadata row for an object stored in the configured storage
// backend. The blob lives at StoragePath; deleting a file removes both.
type File struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	UploadedBy  *string   `json:"uploaded_by,omitempty"`
	Name        string    `json:"name"`
	StoragePath string    `json:"-"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	IndexStatus string    `json:"index_status"`
	IndexError  string    `json:"index_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
