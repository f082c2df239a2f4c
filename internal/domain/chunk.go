package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChunkMetadata locates a chunk inside its source document.
type ChunkMetadata struct {
	DocumentID   string `json:"documentId"`
	ChunkIndex   int    `json:"chunkIndex"`
	StartChar    int    `json:"startChar"`
	EndChar      int    `json:"endChar"`
	DocumentName string `json:"documentName"`
	Section      string `json:"section,omitempty"`
}

// TextChunk is a bounded slice of a document's text, optionally embedded.
type TextChunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
}

// ChunkID builds the identifier for the chunk at index within a document
func ChunkID(documentID string, index int) string {
	return documentID + "-" + strconv.Itoa(index)
}

// HasEmbedding reports whether a vector has been attached
func (c TextChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ValidateTextChunk validates a TextChunk instance
func ValidateTextChunk(c *TextChunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.Metadata.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.ID != ChunkID(c.Metadata.DocumentID, c.Metadata.ChunkIndex) {
		return fmt.Errorf("chunk ID %q does not match document and index", c.ID)
	}

	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("chunk Content cannot be empty")
	}

	if c.Metadata.StartChar >= c.Metadata.EndChar {
		return fmt.Errorf("chunk StartChar must be before EndChar")
	}

	return nil
}

// ProcessingOptions controls how a document is chunked.
type ProcessingOptions struct {
	ChunkSize       int  `json:"chunk_size" validate:"gt=0"`
	ChunkOverlap    int  `json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	IncludeMetadata bool `json:"include_metadata"`
}

// DefaultProcessingOptions returns the ingest defaults
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		ChunkSize:       1000,
		ChunkOverlap:    200,
		IncludeMetadata: true,
	}
}

// ValidateProcessingOptions checks the size and overlap bounds
func ValidateProcessingOptions(o ProcessingOptions) error {
	return ValidateStruct(o)
}

// ChunkRecord is the persisted form of a TextChunk. Metadata is stored as
// JSON; DocumentName is read from the owning document rather than the row.
type ChunkRecord struct {
	ID           string
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Content      string
	Metadata     []byte
	Embedding    []float32
}

// NewChunkRecord converts a chunk into its persisted form
func NewChunkRecord(c TextChunk) (ChunkRecord, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("encoding chunk %s metadata: %w", c.ID, err)
	}
	return ChunkRecord{
		ID:           c.ID,
		DocumentID:   c.Metadata.DocumentID,
		DocumentName: c.Metadata.DocumentName,
		ChunkIndex:   c.Metadata.ChunkIndex,
		Content:      c.Content,
		Metadata:     meta,
		Embedding:    c.Embedding,
	}, nil
}

// TextChunk rebuilds the chunk. The row's document id and the document's
// current name win over whatever the stored metadata says.
func (r ChunkRecord) TextChunk() (TextChunk, error) {
	var meta ChunkMetadata
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return TextChunk{}, fmt.Errorf("decoding chunk %s metadata: %w", r.ID, err)
		}
	}
	meta.DocumentID = r.DocumentID
	meta.ChunkIndex = r.ChunkIndex
	if r.DocumentName != "" {
		meta.DocumentName = r.DocumentName
	}
	return TextChunk{
		ID:        r.ID,
		Content:   r.Content,
		Metadata:  meta,
		Embedding: r.Embedding,
	}, nil
}
