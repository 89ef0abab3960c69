package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"gwi.com/rag-chat/internal/config"
	"gwi.com/rag-chat/internal/core"
	"gwi.com/rag-chat/internal/document"
	"gwi.com/rag-chat/internal/store"
	"gwi.com/rag-chat/internal/vectorstore"
	"gwi.com/rag-chat/internal/vectorstore/chromemstore"
	"gwi.com/rag-chat/internal/vectorstore/pgstore"
)

// app holds the long-lived handles shared by every request.
type app struct {
	llm      *core.LLMService
	vectors  vectorstore.Storage
	sessions store.SessionStore

	rag    *core.RAGService
	chat   *core.ChatService
	ingest *core.IngestService
	media  *core.MediaService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	llm, err := core.NewLLMService(ctx, core.LLMConfig{
		APIKey:         cfg.GeminiAPIKey,
		ChatModel:      cfg.ChatModel,
		VisionModel:    cfg.VisionModel,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, err
	}
	a := &app{llm: llm}

	a.vectors, err = openVectorStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sessions, err = openSessionStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.rag = core.NewRAGService(llm, a.vectors)
	a.chat = core.NewChatService(a.sessions, a.rag, llm, cfg.RetrievalK, cfg.DefaultSessionID)
	a.ingest = core.NewIngestService(llm, a.vectors, document.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), cfg.UploadDir)
	a.media = core.NewMediaService(llm)
	return a, nil
}

func openVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.Storage, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPGVector:
		s, err := pgstore.New(ctx, cfg.PGVectorDSN, cfg.CollectionName, cfg.DBDebug)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pgvector store: %w", err)
		}
		return s, nil
	default:
		s, err := chromemstore.New(cfg.VectorStorePath, cfg.CollectionName, cfg.VectorStoreCompress)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		return s, nil
	}
}

func openSessionStore(cfg *config.Config) (store.SessionStore, error) {
	if cfg.SessionBackend == config.SessionBackendSQLite {
		s, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize session database: %w", err)
		}
		return s, nil
	}
	return store.NewMemoryStore(), nil
}

func (a *app) Close() {
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing session store")
		}
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing vector store")
		}
	}
	a.llm.Close()
}
