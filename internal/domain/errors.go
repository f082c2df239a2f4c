package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// DomainCode returns the error code; it is promoted to the typed errors below
func (e *DomainError) DomainCode() string {
	return e.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidOperation  = "INVALID_OPERATION"
	ErrCodeExtraction        = "EXTRACTION_ERROR"
	ErrCodeEmbeddingBatch    = "EMBEDDING_BATCH_ERROR"
	ErrCodeDimensionMismatch = "DIMENSION_MISMATCH"
	ErrCodeQuery             = "QUERY_ERROR"
	ErrCodeInitialization    = "INITIALIZATION_ERROR"
)

// Validation errors
var (
	ErrInvalidDocumentStatus  = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidFileType        = NewDomainError(ErrCodeValidation, "only PDF and DOCX files are supported")
	ErrFileTooLarge           = NewDomainError(ErrCodeValidation, "file size exceeds the upload limit")
	ErrInvalidIngestJobStatus = NewDomainError(ErrCodeValidation, "invalid ingest job status")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuestion          = NewDomainError(ErrCodeValidation, "question is required")
)

// Not found errors
var (
	ErrDocumentNotFound  = NewDomainError(ErrCodeNotFound, "document not found")
	ErrIngestJobNotFound = NewDomainError(ErrCodeNotFound, "ingest job not found")
	ErrFileNotFound      = NewDomainError(ErrCodeNotFound, "stored file not found")
)

// Operation errors
var (
	ErrDocumentProcessing   = NewDomainError(ErrCodeInvalidOperation, "document is already being processed")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

// ExtractionCause classifies why text could not be pulled out of a file.
type ExtractionCause string

const (
	ExtractionCauseTimeout   ExtractionCause = "timeout"
	ExtractionCauseEncrypted ExtractionCause = "encrypted"
	ExtractionCauseImageOnly ExtractionCause = "image-only"
	ExtractionCauseCorrupted ExtractionCause = "corrupted"
	ExtractionCauseUnknown   ExtractionCause = "unknown"
)

// ExtractionError is returned when a PDF or DOCX yields no usable text.
// The pipeline recovers from it by substituting fallback text.
type ExtractionError struct {
	*DomainError
	Cause ExtractionCause
}

// NewExtractionError creates an ExtractionError for the given cause
func NewExtractionError(cause ExtractionCause, err error) *ExtractionError {
	return &ExtractionError{
		DomainError: NewDomainErrorWithCause(ErrCodeExtraction, "text extraction failed ("+string(cause)+")", err),
		Cause:       cause,
	}
}

// EmbeddingBatchError marks a batch whose chunks passed through without vectors.
type EmbeddingBatchError struct {
	*DomainError
	BatchStart int
	BatchSize  int
}

// NewEmbeddingBatchError creates an EmbeddingBatchError for the batch starting at start
func NewEmbeddingBatchError(start, size int, err error) *EmbeddingBatchError {
	return &EmbeddingBatchError{
		DomainError: NewDomainErrorWithCause(ErrCodeEmbeddingBatch,
			fmt.Sprintf("embedding batch [%d:%d] failed", start, start+size), err),
		BatchStart: start,
		BatchSize:  size,
	}
}

// DimensionMismatchError is returned when two vectors of different lengths are compared.
type DimensionMismatchError struct {
	*DomainError
	Expected int
	Actual   int
}

// NewDimensionMismatchError creates a DimensionMismatchError
func NewDimensionMismatchError(expected, actual int) *DimensionMismatchError {
	return &DimensionMismatchError{
		DomainError: NewDomainError(ErrCodeDimensionMismatch,
			fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, actual)),
		Expected: expected,
		Actual:   actual,
	}
}

// QuerySafeMessage is the only failure text a query caller ever sees.
const QuerySafeMessage = "I encountered an error while generating your answer. Please try again."

// QueryError wraps an embedding or completion failure on the query path.
type QueryError struct {
	*DomainError
}

// NewQueryError creates a QueryError carrying the safe message
func NewQueryError(err error) *QueryError {
	return &QueryError{DomainError: NewDomainErrorWithCause(ErrCodeQuery, QuerySafeMessage, err)}
}

// SafeMessage returns the user-facing text for the failure
func (e *QueryError) SafeMessage() string {
	return QuerySafeMessage
}

// InitializationError is returned when the pipeline cannot start.
type InitializationError struct {
	*DomainError
}

// NewInitializationError creates an InitializationError
func NewInitializationError(message string, err error) *InitializationError {
	return &InitializationError{DomainError: NewDomainErrorWithCause(ErrCodeInitialization, message, err)}
}

// ErrorCode returns the domain code carried by err, or an empty string.
func ErrorCode(err error) string {
	var coded interface{ DomainCode() string }
	if errors.As(err, &coded) {
		return coded.DomainCode()
	}
	return ""
}
