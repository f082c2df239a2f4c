package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const documentColumns = `id, filename, original_name, file_type, file_size, status, error, chunk_count, created_at, updated_at`

// DocumentRepository persists document records.
type DocumentRepository struct {
	db querier
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.OriginalName, string(d.FileType), d.FileSize, string(d.Status),
		nullString(d.Error), d.ChunkCount, d.CreatedAt.UTC(), d.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(errMsg), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	return requireRow(res, domain.ErrDocumentNotFound)
}

func (r *DocumentRepository) MarkReady(ctx context.Context, id string, chunkCount int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = NULL, chunk_count = ?, updated_at = ? WHERE id = ?`,
		string(domain.DocumentStatusReady), chunkCount, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking document ready: %w", err)
	}
	return requireRow(res, domain.ErrDocumentNotFound)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return requireRow(res, domain.ErrDocumentNotFound)
}

func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var d domain.Document
	var fileType, status string
	var errMsg sql.NullString
	if err := row.Scan(&d.ID, &d.Filename, &d.OriginalName, &fileType, &d.FileSize, &status,
		&errMsg, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.FileType = domain.FileType(fileType)
	d.Status = domain.DocumentStatus(status)
	d.Error = errMsg.String
	return &d, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
