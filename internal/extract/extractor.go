package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// DefaultTimeout bounds a single extraction.
const DefaultTimeout = 10 * time.Second

// Processing methods reported in Result metadata.
const (
	MethodPDF      = "pdf-parse"
	MethodDOCX     = "docx-raw"
	MethodFallback = "fallback-content"
)

// Metadata describes how a Result was produced.
type Metadata struct {
	Filename         string `json:"filename"`
	FileSize         int64  `json:"file_size"`
	ProcessingMethod string `json:"processing_method"`
	Error            string `json:"error,omitempty"`
}

// Result is the outcome of Process. Success is true whenever Text is usable,
// including when it is fallback text.
type Result struct {
	Success  bool
	Text     string
	Metadata Metadata
}

// Extractor turns PDF and DOCX bytes into plain text.
type Extractor struct {
	timeout time.Duration
	parsers map[domain.FileType]func([]byte) (string, error)
}

// NewExtractor creates an Extractor; a non-positive timeout uses DefaultTimeout.
func NewExtractor(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{
		timeout: timeout,
		parsers: map[domain.FileType]func([]byte) (string, error){
			domain.FileTypePDF:  extractPDF,
			domain.FileTypeDOCX: extractDOCX,
		},
	}
}

// Extract returns the raw text of the document. Any failure, including
// running past the timeout, is an *domain.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error) {
	parse, ok := e.parsers[fileType]
	if !ok {
		return "", domain.NewExtractionError(domain.ExtractionCauseUnknown, fmt.Errorf("unsupported file type %q", fileType))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	// Buffered so the parser goroutine can finish after a timeout without blocking.
	done := make(chan outcome, 1)
	go func() {
		text, err := parse(data)
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", domain.NewExtractionError(domain.ExtractionCauseTimeout, ctx.Err())
	case out := <-done:
		return out.text, out.err
	}
}

// Process extracts and cleans the document, substituting fallback text when
// extraction fails so ingestion can always continue.
func (e *Extractor) Process(ctx context.Context, data []byte, filename string, fileType domain.FileType) Result {
	meta := Metadata{
		Filename: filename,
		FileSize: int64(len(data)),
	}

	text, err := e.Extract(ctx, data, fileType)
	if err == nil {
		text = Clean(text)
		if text == "" {
			err = domain.NewExtractionError(domain.ExtractionCauseImageOnly, errors.New("no text left after cleaning"))
		}
	}

	if err != nil {
		cause := domain.ExtractionCauseUnknown
		var extErr *domain.ExtractionError
		if errors.As(err, &extErr) {
			cause = extErr.Cause
		}
		meta.ProcessingMethod = MethodFallback
		meta.Error = err.Error()
		return Result{
			Success:  true,
			Text:     FallbackText(filename, meta.FileSize, fileType, cause),
			Metadata: meta,
		}
	}

	meta.ProcessingMethod = MethodPDF
	if fileType == domain.FileTypeDOCX {
		meta.ProcessingMethod = MethodDOCX
	}
	return Result{Success: true, Text: text, Metadata: meta}
}
