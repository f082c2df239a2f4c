package service

import (
	"context"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// DocumentRepositoryInterface defines the repository interface for document records
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	MarkReady(ctx context.Context, id string, chunkCount int) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// ChunkRepositoryInterface defines the repository interface for persisted chunks
type ChunkRepositoryInterface interface {
	// ReplaceChunks swaps every stored chunk of documentID for records
	ReplaceChunks(ctx context.Context, documentID string, records []domain.ChunkRecord) error
	// ListAll returns every stored chunk with its document's current name
	ListAll(ctx context.Context) ([]domain.ChunkRecord, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}

// IngestJobRepositoryInterface defines the repository interface for enqueuing ingest jobs
type IngestJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IngestJob) error
}

// ConversationRepositoryInterface defines the repository interface for recorded questions and answers
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Conversation) error
	AddMessage(ctx context.Context, m *domain.Message) error
	// ListMessagesByDocument returns the messages of every conversation about
	// documentID, newest conversation first and each conversation in order
	ListMessagesByDocument(ctx context.Context, documentID string) ([]*domain.Message, error)
}
