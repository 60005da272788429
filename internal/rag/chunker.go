// Package rag implements retrieval-augmented generation over uploaded project
// documents: text chunking, query classification, vector retrieval, and the
// bounded agent loop that answers chat questions.
package rag

import (
	"strings"

	"github.com/grooshub/grooshub/internal/config"
)

// Chunker splits document text into chunks sized for embedding. Chunks are
// measured in runes, not bytes, so multi-byte text does not get split
// mid-character.
type Chunker struct {
	size    int
	overlap int
}

const (
	defaultChunkSize    = 1500
	defaultChunkOverlap = 200
)

// NewChunker creates a chunker from configuration. Zero or negative values
// fall back to defaults; overlap is clamped below the chunk size.
func NewChunker(cfg *config.RAGConfig) *Chunker {
	size := cfg.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into chunks. Paragraphs are packed greedily up to the
// chunk size; a single paragraph longer than the chunk size is split on a
// sliding rune window with the configured overlap between windows.
// Whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var buf []rune

	flush := func() {
		chunk := strings.TrimSpace(string(buf))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		buf = buf[:0]
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		runes := []rune(para)

		// Oversized paragraph: slide a window across it
		if len(runes) > c.size {
			flush()
			step := c.size - c.overlap
			for start := 0; start < len(runes); start += step {
				end := start + c.size
				if end >= len(runes) {
					chunk := strings.TrimSpace(string(runes[start:]))
					if chunk != "" {
						chunks = append(chunks, chunk)
					}
					break
				}
				chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
			}
			continue
		}

		if len(buf) > 0 && len(buf)+2+len(runes) > c.size {
			flush()
		}
		if len(buf) > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, runes...)
	}
	flush()

	return chunks
}
