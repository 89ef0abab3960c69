// Package pgstore keeps the document collection in PostgreSQL using the
// pgvector extension.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"gwi.com/rag-chat/internal/vectorstore"
)

type chunkRow struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`

	ID         string          `bun:"id,pk"`
	Collection string          `bun:"collection,notnull"`
	Content    string          `bun:"content,notnull"`
	Source     string          `bun:"source,notnull"`
	Page       int             `bun:"page,notnull"`
	ChunkIndex int             `bun:"chunk_index,notnull"`
	Embedding  pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Similarity float32         `bun:"similarity,scanonly"`
}

type Store struct {
	db         *bun.DB
	collection string
}

var _ vectorstore.Storage = (*Store)(nil)

func NewDB(dsn string, debug bool) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// New connects to dsn and makes sure the extension, table and index exist.
func New(ctx context.Context, dsn, collection string, debug bool) (*Store, error) {
	db := NewDB(dsn, debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db, collection: collection}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info().Str("collection", collection).Msg("pgvector collection ready")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}
	if _, err := s.db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewCreateIndex().
		Model((*chunkRow)(nil)).
		Index("document_chunks_collection_idx").
		Column("collection").
		IfNotExists().
		Exec(ctx)
	return err
}

// Add inserts all chunks in one transaction so an upload is stored entirely or not at all.
func (s *Store) Add(ctx context.Context, chunks []vectorstore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]chunkRow, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", ch.ID)
		}
		rows = append(rows, chunkRow{
			ID:         ch.ID,
			Collection: s.collection,
			Content:    ch.Content,
			Source:     ch.Source,
			Page:       ch.Page,
			ChunkIndex: ch.Index,
			Embedding:  pgvector.NewVector(ch.Embedding),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	q := pgvector.NewVector(vec)

	var rows []chunkRow
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "content", "source", "page", "chunk_index", "embedding").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", q).
		Where("collection = ?", s.collection).
		OrderExpr("embedding <=> ?", q).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]vectorstore.Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, vectorstore.Result{
			Chunk: vectorstore.Chunk{
				ID:        r.ID,
				Content:   r.Content,
				Source:    r.Source,
				Page:      r.Page,
				Index:     r.ChunkIndex,
				Embedding: r.Embedding.Slice(),
			},
			Similarity: r.Similarity,
		})
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*chunkRow)(nil)).Where("collection = ?", s.collection).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
