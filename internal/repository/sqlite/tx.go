package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/service"
)

// TxRunner provides transactional repositories over one SQLite transaction.
type TxRunner struct {
	db *sql.DB
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&txRepos{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type txRepos struct {
	tx *sql.Tx
}

func (r *txRepos) Documents() service.DocumentRepositoryInterface {
	return &DocumentRepository{db: r.tx}
}

func (r *txRepos) IngestJobs() service.IngestJobRepositoryInterface {
	return &IngestJobRepository{db: r.tx}
}

func (r *txRepos) Conversations() service.ConversationRepositoryInterface {
	return &ConversationRepository{db: r.tx}
}

var (
	_ service.DocumentRepositoryInterface     = (*DocumentRepository)(nil)
	_ service.ChunkRepositoryInterface        = (*ChunkRepository)(nil)
	_ service.IngestJobRepositoryInterface    = (*IngestJobRepository)(nil)
	_ service.ConversationRepositoryInterface = (*ConversationRepository)(nil)
	_ service.TxRunner                        = (*TxRunner)(nil)
)
