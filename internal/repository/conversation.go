package repository

import (
	"context"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, document_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.DocumentID, c.Title, c.CreatedAt,
	)
	return err
}

func (r *ConversationRepository) AddMessage(ctx context.Context, m *domain.Message) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt,
	)
	return err
}

// ListMessagesByDocument orders user before assistant when a conversation's
// messages share a timestamp.
func (r *ConversationRepository) ListMessagesByDocument(ctx context.Context, documentID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.document_id = $1
		 ORDER BY c.created_at DESC, c.id, m.created_at, m.role = 'assistant'`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
