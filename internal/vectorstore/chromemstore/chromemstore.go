// Package chromemstore keeps the document collection in an embedded,
// file-persisted chromem-go database.
package chromemstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"gwi.com/rag-chat/internal/vectorstore"
)

const (
	metaSource = "source"
	metaPage   = "page"
	metaIndex  = "index"
)

var errEmbeddingRequired = errors.New("chunk embeddings must be computed before storage")

type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ vectorstore.Storage = (*Store)(nil)

// New opens (or creates) the persistent database at path and the named
// collection inside it. An empty path keeps everything in memory.
func New(path, collectionName string, compress bool) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database at %s: %w", path, err)
		}
	}

	// Embeddings are always supplied by the caller; chromem must never embed on its own.
	c, err := db.GetOrCreateCollection(collectionName, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection %s: %w", collectionName, err)
	}
	log.Info().Str("collection", collectionName).Int("documents", c.Count()).Msg("Vector collection ready")
	return &Store{db: db, collection: c}, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingRequired
}

func (s *Store) Add(ctx context.Context, chunks []vectorstore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("chunk %s: %w", ch.ID, errEmbeddingRequired)
		}
		docs = append(docs, chromem.Document{
			ID:      ch.ID,
			Content: ch.Content,
			Metadata: map[string]string{
				metaSource: ch.Source,
				metaPage:   strconv.Itoa(ch.Page),
				metaIndex:  strconv.Itoa(ch.Index),
			},
			Embedding: ch.Embedding,
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]vectorstore.Result, error) {
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	res, err := s.collection.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]vectorstore.Result, 0, len(res))
	for _, r := range res {
		page, _ := strconv.Atoi(r.Metadata[metaPage])
		index, _ := strconv.Atoi(r.Metadata[metaIndex])
		results = append(results, vectorstore.Result{
			Chunk: vectorstore.Chunk{
				ID:        r.ID,
				Content:   r.Content,
				Source:    r.Metadata[metaSource],
				Page:      page,
				Index:     index,
				Embedding: r.Embedding,
			},
			Similarity: r.Similarity,
		})
	}
	return results, nil
}

func (s *Store) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op: the persistent DB writes every document on insert.
func (s *Store) Close() error {
	return nil
}
