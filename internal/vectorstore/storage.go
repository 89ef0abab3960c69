// Package vectorstore persists embedded document chunks and answers
// nearest-neighbour queries over them.
package vectorstore

import "context"

// Chunk is one embedded span of an ingested document.
type Chunk struct {
	ID        string
	Content   string
	Source    string
	Page      int
	Index     int
	Embedding []float32
}

type Result struct {
	Chunk
	Similarity float32
}

// Storage is a long-lived handle on one named collection. Implementations are
// safe for concurrent use.
type Storage interface {
	// Add appends chunks to the collection. Every chunk must carry an embedding.
	Add(ctx context.Context, chunks []Chunk) error
	// Search returns at most k chunks ordered by descending similarity to vec.
	Search(ctx context.Context, vec []float32, k int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
