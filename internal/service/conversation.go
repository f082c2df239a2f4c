package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"go.uber.org/zap"
)

// ConversationService keeps the question and answer history of documents.
type ConversationService struct {
	documents     DocumentRepositoryInterface
	conversations ConversationRepositoryInterface
	txRunner      TxRunner
	uuidGen       UUIDGenerator
	logger        *zap.Logger
	now           func() time.Time
}

// ConversationServiceConfig holds the collaborators of a ConversationService.
// TxRunner is optional; without it the conversation and its messages are
// written separately.
type ConversationServiceConfig struct {
	Documents     DocumentRepositoryInterface
	Conversations ConversationRepositoryInterface
	TxRunner      TxRunner
	UUIDGen       UUIDGenerator
	Logger        *zap.Logger
}

func NewConversationService(cfg ConversationServiceConfig) *ConversationService {
	if cfg.UUIDGen == nil {
		cfg.UUIDGen = &DefaultUUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ConversationService{
		documents:     cfg.Documents,
		conversations: cfg.Conversations,
		txRunner:      cfg.TxRunner,
		uuidGen:       cfg.UUIDGen,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Record stores a question asked about documentID and its answer as a new
// conversation.
func (s *ConversationService) Record(ctx context.Context, documentID, question, answer string) (*domain.Conversation, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Record", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "conversation",
	})
	defer span.End()

	now := s.now().UTC()
	conv := &domain.Conversation{
		ID:         s.uuidGen.NewString(),
		DocumentID: documentID,
		Title:      domain.ConversationTitle(question),
		CreatedAt:  now,
	}
	messages := []*domain.Message{
		{ID: s.uuidGen.NewString(), ConversationID: conv.ID, Role: domain.MessageRoleUser, Content: question, CreatedAt: now},
		{ID: s.uuidGen.NewString(), ConversationID: conv.ID, Role: domain.MessageRoleAssistant, Content: answer, CreatedAt: now},
	}

	write := func(repo ConversationRepositoryInterface) error {
		if err := repo.Create(ctx, conv); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		for _, m := range messages {
			if err := repo.AddMessage(ctx, m); err != nil {
				return fmt.Errorf("failed to store %s message: %w", m.Role, err)
			}
		}
		return nil
	}

	var err error
	if s.txRunner != nil {
		err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			return write(repos.Conversations())
		})
	} else {
		err = write(s.conversations)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.logger.Debug("conversation recorded", zap.String("document_id", documentID), zap.String("conversation_id", conv.ID))
	return conv, nil
}

// Messages returns every recorded message about a document, newest
// conversation first.
func (s *ConversationService) Messages(ctx context.Context, documentID string) ([]*domain.Message, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.conversations.ListMessagesByDocument(ctx, documentID)
}
