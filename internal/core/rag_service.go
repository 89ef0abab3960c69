package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"gwi.com/rag-chat/internal/vectorstore"
)

// DefaultRetrievalK is the number of chunks retrieved when the caller passes k <= 0.
const DefaultRetrievalK = 4

type RAGService struct {
	embedder embeddings.Embedder
	store    vectorstore.Storage
}

func NewRAGService(embedder embeddings.Embedder, store vectorstore.Storage) *RAGService {
	return &RAGService{embedder: embedder, store: store}
}

// RetrieveContext returns the k chunks most similar to query, best first,
// separated by blank lines. An empty collection yields "".
func (s *RAGService) RetrieveContext(ctx context.Context, query string, k int) (string, error) {
	if k <= 0 {
		k = DefaultRetrievalK
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count stored chunks: %w", err)
	}
	if count == 0 {
		log.Ctx(ctx).Debug().Msg("No chunks available for context retrieval")
		return "", nil
	}
	k = min(k, count)

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to get query embedding: %w", err)
	}

	results, err := s.store.Search(ctx, queryEmbedding, k)
	if err != nil {
		return "", fmt.Errorf("failed to search chunks: %w", err)
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	log.Ctx(ctx).Debug().Int("chunks", len(parts)).Msg("Retrieved context")
	return strings.Join(parts, "\n\n"), nil
}
