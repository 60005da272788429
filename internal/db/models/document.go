// Package models - document.go defines the DocumentChunk model backing the
// pgvector similarity index used for retrieval-augmented generation.
package models

import "time"

// DocumentChunk is one embedded slice of an uploaded file. Embeddings are
// stored as pgvector columns; the Embedding field is only populated on insert,
// never read back in full (similarity queries return content and distance).
type DocumentChunk struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	ProjectID  string    `json:"project_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkMatch is a retrieval result: a chunk plus its cosine distance to the
// query embedding (lower is more similar) and the originating file name.
type ChunkMatch struct {
	ChunkID  string  `json:"chunk_id"`
	FileID   string  `json:"file_id"`
	FileName string  `json:"file_name"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}
