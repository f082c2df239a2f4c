package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ChunkRepository persists chunk rows with their embeddings as BLOBs.
type ChunkRepository struct {
	db       querier
	beginner txBeginner
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones
// in a single transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, records []domain.ChunkRecord) error {
	tx, err := r.beginner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO document_chunks (id, document_id, chunk_index, content, metadata, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, rec := range records {
			metadata := string(rec.Metadata)
			if metadata == "" {
				metadata = "{}"
			}
			if _, err := stmt.ExecContext(ctx, rec.ID, documentID, rec.ChunkIndex, rec.Content,
				metadata, float32SliceToBytes(rec.Embedding), now); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", rec.ID, err)
			}
		}
	}

	return tx.Commit()
}

// ListAll returns every chunk with the current name of its document.
func (r *ChunkRepository) ListAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, d.original_name, c.chunk_index, c.content, c.metadata, c.embedding
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 ORDER BY d.created_at, c.document_id, c.chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ChunkRecord, 0)
	for rows.Next() {
		var rec domain.ChunkRecord
		var metadata string
		var embedding []byte
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.DocumentName, &rec.ChunkIndex,
			&rec.Content, &metadata, &embedding); err != nil {
			return nil, err
		}
		rec.Metadata = []byte(metadata)
		rec.Embedding = bytesToFloat32Slice(embedding)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID)
	return err
}

func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&n)
	return n, err
}
