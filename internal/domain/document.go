package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus represents where a document is in the ingest lifecycle
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusError      DocumentStatus = "error"
)

// FileType is the source format of an uploaded document
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
)

// MIME types accepted on upload.
const (
	MimeTypePDF  = "application/pdf"
	MimeTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Document is the record of an uploaded file. Filename is the storage key;
// OriginalName is what the user uploaded and what answers cite.
type Document struct {
	ID           string
	Filename     string
	OriginalName string
	FileType     FileType
	FileSize     int64
	Status       DocumentStatus
	Error        string
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewDocument creates a new Document in the processing state
func NewDocument(id, filename, originalName string, fileType FileType, fileSize int64, now time.Time) *Document {
	return &Document{
		ID:           id,
		Filename:     filename,
		OriginalName: originalName,
		FileType:     fileType,
		FileSize:     fileSize,
		Status:       DocumentStatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if d.OriginalName == "" {
		return fmt.Errorf("document OriginalName is required")
	}

	if !IsValidFileType(d.FileType) {
		return fmt.Errorf("document FileType is invalid: %s", d.FileType)
	}

	if d.FileSize < 0 {
		return fmt.Errorf("document FileSize cannot be negative")
	}

	if !IsValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// IsValidDocumentStatus checks if a DocumentStatus is valid
func IsValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusProcessing, DocumentStatusReady, DocumentStatusError:
		return true
	}
	return false
}

// IsValidFileType checks if a FileType is supported
func IsValidFileType(t FileType) bool {
	return t == FileTypePDF || t == FileTypeDOCX
}

// DetectFileType resolves the file type from the declared MIME type,
// falling back to the file extension.
func DetectFileType(mimeType, filename string) (FileType, error) {
	switch strings.TrimSpace(strings.ToLower(mimeType)) {
	case MimeTypePDF:
		return FileTypePDF, nil
	case MimeTypeDOCX:
		return FileTypeDOCX, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FileTypePDF, nil
	case ".docx":
		return FileTypeDOCX, nil
	}

	return "", ErrInvalidFileType
}

// Stats summarizes what the pipeline currently holds.
type Stats struct {
	TotalDocuments           int     `json:"total_documents"`
	TotalChunks              int     `json:"total_chunks"`
	AverageChunksPerDocument float64 `json:"average_chunks_per_document"`
	TotalEmbeddings          int     `json:"total_embeddings"`
}
