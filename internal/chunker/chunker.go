// Package chunker splits text into overlapping word windows for embedding.
package chunker

import (
	"fmt"
	"strings"
)

// Chunker splits text into overlapping word-based windows. Windows contain up
// to size tokens and advance by size-overlap tokens per step, so consecutive
// windows share the last overlap tokens. The sequence stops once a window
// reaches the final token; no trailing window made purely of already-emitted
// overlap tokens is produced.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker with the given window size and overlap (in words).
// overlap must be strictly smaller than size: an overlap >= size would make
// the window advance non-positive and the sequence non-terminating, so it is
// rejected here rather than clamped.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits text on whitespace and returns the ordered sequence of windows.
// Empty or whitespace-only input yields nil.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.size - c.overlap
	chunks := make([]string, 0, (len(words)+step-1)/step)
	for i := 0; i < len(words); i += step {
		end := i + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return chunks
}
