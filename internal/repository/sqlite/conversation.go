package sqlite

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// ConversationRepository persists asked questions and their answers.
type ConversationRepository struct {
	db querier
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, document_id, title, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.Title, c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) AddMessage(ctx context.Context, m *domain.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ListMessagesByDocument(ctx context.Context, documentID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.document_id = ?
		 ORDER BY c.created_at DESC, c.id, m.created_at, m.role = 'assistant'`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.MessageRole(role)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
