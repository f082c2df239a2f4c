package repository

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocumentChunkRepository handles persistence of document chunks and their embeddings.
type DocumentChunkRepository struct {
	db dbtx
}

func NewDocumentChunkRepository(pool *pgxpool.Pool) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: pool}
}

func NewDocumentChunkRepositoryWithTx(tx pgx.Tx) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones
// in a single transaction.
func (r *DocumentChunkRepository) ReplaceChunks(ctx context.Context, documentID string, records []domain.ChunkRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return err
	}

	if len(records) > 0 {
		batch := &pgx.Batch{}
		for _, rec := range records {
			var embedding *pgvector.Vector
			if len(rec.Embedding) > 0 {
				v := pgvector.NewVector(rec.Embedding)
				embedding = &v
			}
			batch.Queue(
				`INSERT INTO document_chunks (id, document_id, chunk_index, content, metadata, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				rec.ID, documentID, rec.ChunkIndex, rec.Content, rec.Metadata, embedding,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListAll returns every chunk with the current name of its document.
func (r *DocumentChunkRepository) ListAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, d.original_name, c.chunk_index, c.content, c.metadata, c.embedding
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 ORDER BY d.created_at, c.document_id, c.chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ChunkRecord, 0)
	for rows.Next() {
		var rec domain.ChunkRecord
		var embedding *pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.DocumentName, &rec.ChunkIndex,
			&rec.Content, &rec.Metadata, &embedding); err != nil {
			return nil, err
		}
		if embedding != nil {
			rec.Embedding = embedding.Slice()
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *DocumentChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (r *DocumentChunkRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&n)
	return n, err
}
