package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"gwi.com/rag-chat/internal/document"
	"gwi.com/rag-chat/internal/vectorstore"
)

type IngestService struct {
	embedder  embeddings.Embedder
	store     vectorstore.Storage
	splitter  *document.Splitter
	uploadDir string
}

func NewIngestService(embedder embeddings.Embedder, store vectorstore.Storage, splitter *document.Splitter, uploadDir string) *IngestService {
	return &IngestService{
		embedder:  embedder,
		store:     store,
		splitter:  splitter,
		uploadDir: uploadDir,
	}
}

// IsPDF reports whether filename has a .pdf extension, ignoring case.
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// IngestUpload stages an uploaded PDF under the upload directory, ingests it
// and removes the staged copy whatever the outcome.
func (s *IngestService) IngestUpload(ctx context.Context, filename string, r io.Reader) (int, error) {
	name := filepath.Base(filename)
	if !IsPDF(name) {
		return 0, ErrUnsupportedFileType
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create upload directory: %w", err)
	}
	// A private directory per upload keeps the uploaded file name without collisions.
	dir, err := os.MkdirTemp(s.uploadDir, "upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to stage upload: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("dir", dir).Msg("Failed to remove staged upload")
		}
	}()

	path := filepath.Join(dir, name)
	if err := writeFile(path, r); err != nil {
		return 0, fmt.Errorf("failed to stage upload: %w", err)
	}
	return s.IngestFile(ctx, path)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// IngestFile splits the PDF at path into chunks, embeds them and appends them
// to the collection. It returns the number of chunks stored.
func (s *IngestService) IngestFile(ctx context.Context, path string) (int, error) {
	logger := log.Ctx(ctx).With().Str("file", filepath.Base(path)).Logger()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !IsPDF(path) {
		return 0, ErrUnsupportedFileType
	}

	pages, err := document.LoadPDF(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load pdf: %w", err)
	}
	docs, err := s.splitter.Split(pages)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		logger.Warn().Msg("No text found in document")
		return 0, nil
	}
	logger.Info().Int("pages", len(pages)).Int("chunks", len(docs)).Msg("Embedding chunks")

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(docs))
	}

	chunks := make([]vectorstore.Chunk, len(docs))
	for i, d := range docs {
		source, _ := d.Metadata[document.MetaSource].(string)
		page, _ := d.Metadata[document.MetaPage].(int)
		chunks[i] = vectorstore.Chunk{
			ID:        uuid.NewString(),
			Content:   d.PageContent,
			Source:    source,
			Page:      page,
			Index:     i,
			Embedding: vectors[i],
		}
	}
	if err := s.store.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	logger.Info().Int("chunks", len(chunks)).Msg("Document ingested")
	return len(chunks), nil
}
