package services

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker splits extracted text into bounded, overlapping segments in
// reading order. Deterministic: identical input and parameters always
// produce an identical sequence.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// TextChunker wraps the recursive character splitter, which prefers
// paragraph, then sentence, then word boundaries before a hard cut.
type TextChunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewTextChunker clamps the parameters so overlap is always strictly
// smaller than the chunk size.
func NewTextChunker(chunkSize, chunkOverlap int) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &TextChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

func (c *TextChunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return c.splitter.SplitText(text)
}
