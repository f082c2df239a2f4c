package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes is the upload size limit when none is configured.
const DefaultMaxUploadBytes = 10 << 20

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// FileStore holds the raw bytes of uploaded documents.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentPipeline is the part of Pipeline the document service drives.
type DocumentPipeline interface {
	ProcessDocument(ctx context.Context, doc *domain.Document, data []byte) (*domain.IngestReport, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// DocumentService handles the document lifecycle around the pipeline:
// upload, enqueue, reprocess, status changes and deletion.
type DocumentService struct {
	documents      DocumentRepositoryInterface
	jobs           IngestJobRepositoryInterface
	txRunner       TxRunner
	files          FileStore
	pipeline       DocumentPipeline
	uuidGen        UUIDGenerator
	maxUploadBytes int64
	logger         *zap.Logger
}

// DocumentServiceConfig holds the collaborators of a DocumentService.
// TxRunner is optional; without it the record and its job are written separately.
type DocumentServiceConfig struct {
	Documents      DocumentRepositoryInterface
	Jobs           IngestJobRepositoryInterface
	TxRunner       TxRunner
	Files          FileStore
	Pipeline       DocumentPipeline
	UUIDGen        UUIDGenerator
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(cfg DocumentServiceConfig) *DocumentService {
	if cfg.UUIDGen == nil {
		cfg.UUIDGen = &DefaultUUIDGenerator{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &DocumentService{
		documents:      cfg.Documents,
		jobs:           cfg.Jobs,
		txRunner:       cfg.TxRunner,
		files:          cfg.Files,
		pipeline:       cfg.Pipeline,
		uuidGen:        cfg.UUIDGen,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         cfg.Logger,
	}
}

// UploadInput represents an uploaded file
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Upload validates and stores a file, creates its document record in
// processing state and queues it for ingest.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Upload", telemetry.SpanAttributes{Operation: "upload"})
	defer span.End()

	name := filepath.Base(strings.TrimSpace(input.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}
	fileType, err := domain.DetectFileType(input.ContentType, name)
	if err != nil {
		return nil, err
	}
	if len(input.Data) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "file is empty")
	}
	if int64(len(input.Data)) > s.maxUploadBytes {
		return nil, domain.ErrFileTooLarge
	}

	now := time.Now().UTC()
	docID := s.uuidGen.NewString()
	key := storageKey(docID, fileType)
	doc := domain.NewDocument(docID, key, name, fileType, int64(len(input.Data)), now)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, err.Error(), err)
	}

	contentType := domain.MimeTypePDF
	if fileType == domain.FileTypeDOCX {
		contentType = domain.MimeTypeDOCX
	}
	if err := s.files.Put(ctx, key, contentType, input.Data); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	job := domain.NewIngestJob(s.uuidGen.NewString(), docID, now)
	if err := s.createWithJob(ctx, doc, job); err != nil {
		span.SetError(err)
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove stored upload after error", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", docID),
		zap.String("job_id", job.ID),
		zap.String("file_type", string(fileType)),
		zap.Int64("file_size", doc.FileSize))
	return doc, nil
}

func (s *DocumentService) createWithJob(ctx context.Context, doc *domain.Document, job *domain.IngestJob) error {
	if s.txRunner != nil {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Documents().Create(ctx, doc); err != nil {
				return fmt.Errorf("failed to create document record: %w", err)
			}
			if err := repos.IngestJobs().Create(ctx, job); err != nil {
				return fmt.Errorf("failed to create ingest job: %w", err)
			}
			return nil
		})
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document record: %w", err)
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}
	return nil
}

// Get returns a document by id
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.documents.GetByID(ctx, id)
}

// List returns all documents, newest first
func (s *DocumentService) List(ctx context.Context) ([]*domain.Document, error) {
	return s.documents.List(ctx)
}

// UpdateStatus sets a document's status by hand
func (s *DocumentService) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) (*domain.Document, error) {
	if !domain.IsValidDocumentStatus(status) {
		return nil, domain.ErrInvalidDocumentStatus
	}
	if _, err := s.documents.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.documents.UpdateStatus(ctx, id, status, ""); err != nil {
		return nil, fmt.Errorf("failed to update document status: %w", err)
	}
	return s.documents.GetByID(ctx, id)
}

// Reprocess puts a document back into processing and queues a new ingest job.
func (s *DocumentService) Reprocess(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == domain.DocumentStatusProcessing {
		return nil, domain.ErrDocumentProcessing
	}

	job := domain.NewIngestJob(s.uuidGen.NewString(), id, time.Now().UTC())
	if err := s.documents.UpdateStatus(ctx, id, domain.DocumentStatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("failed to update document status: %w", err)
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create ingest job: %w", err)
	}

	s.logger.Info("document queued for reprocessing", zap.String("document_id", id), zap.String("job_id", job.ID))
	doc.Status = domain.DocumentStatusProcessing
	doc.Error = ""
	return doc, nil
}

// Ingest loads a document's stored bytes and runs it through the pipeline.
func (s *DocumentService) Ingest(ctx context.Context, documentID string) error {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	data, err := s.files.Get(ctx, doc.Filename)
	if err != nil {
		return fmt.Errorf("failed to load stored file: %w", err)
	}

	_, err = s.pipeline.ProcessDocument(ctx, doc, data)
	return err
}

// MarkFailed records that ingestion of a document gave up.
func (s *DocumentService) MarkFailed(ctx context.Context, documentID, reason string) error {
	if err := s.documents.UpdateStatus(ctx, documentID, domain.DocumentStatusError, reason); err != nil {
		return err
	}
	s.logger.Warn("document ingestion failed", zap.String("document_id", documentID), zap.String("reason", reason))
	return nil
}

// Delete removes a document with its vectors, chunks and stored file.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pipeline.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.Filename); err != nil && !errors.Is(err, domain.ErrFileNotFound) {
		s.logger.Warn("failed to delete stored file", zap.String("document_id", id), zap.Error(err))
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.logger.Info("document deleted", zap.String("document_id", id))
	return nil
}

func storageKey(documentID string, fileType domain.FileType) string {
	return "documents/" + documentID + "." + string(fileType)
}
