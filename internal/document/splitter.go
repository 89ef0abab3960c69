package document

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts page documents into overlapping chunks, preferring paragraph,
// line and word boundaries before falling back to single characters.
type Splitter struct {
	splitter textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split returns the chunks of docs in order. Chunk metadata is copied from
// the page the chunk came from; blank chunks are dropped.
func (s *Splitter) Split(docs []schema.Document) ([]schema.Document, error) {
	chunks, err := textsplitter.SplitDocuments(s.splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.PageContent) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
