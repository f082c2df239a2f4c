package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultEmbeddingBatchSize     = 10
	DefaultEmbeddingBatchInterval = time.Second
)

// EmbeddingClient defines the interface for generating embeddings. Vectors
// are returned in input order.
type EmbeddingClient interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig controls batching and pacing of embedding calls.
type EmbedderConfig struct {
	BatchSize int
	// Minimum spacing between consecutive provider calls; zero disables pacing
	BatchInterval time.Duration
}

// Embedder attaches embeddings to chunks, one provider call per batch.
type Embedder struct {
	client    EmbeddingClient
	batchSize int
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewEmbedder creates a new Embedder instance
func NewEmbedder(client EmbeddingClient, cfg EmbedderConfig, logger *zap.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingBatchSize
	}
	limit := rate.Inf
	if cfg.BatchInterval > 0 {
		limit = rate.Every(cfg.BatchInterval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		client:    client,
		batchSize: cfg.BatchSize,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Embed returns a copy of chunks with embeddings attached. Batches are sent
// sequentially; a batch that fails is passed through without embeddings and
// reported in the returned errors instead of aborting the run.
func (e *Embedder) Embed(ctx context.Context, chunks []domain.TextChunk) ([]domain.TextChunk, []*domain.EmbeddingBatchError) {
	out := make([]domain.TextChunk, len(chunks))
	copy(out, chunks)

	var failures []*domain.EmbeddingBatchError
	for start := 0; start < len(out); start += e.batchSize {
		end := min(start+e.batchSize, len(out))
		batch := out[start:end]

		if err := e.embedBatch(ctx, batch); err != nil {
			batchErr := domain.NewEmbeddingBatchError(start, len(batch), err)
			e.logger.Warn("embedding batch failed, keeping chunks without embeddings",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			failures = append(failures, batchErr)
		}
	}

	return out, failures
}

// embedBatch fills in batch embeddings in place, or leaves the batch untouched on error.
func (e *Embedder) embedBatch(ctx context.Context, batch []domain.TextChunk) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for embedding rate limit: %w", err)
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := e.client.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("provider returned %d embeddings for %d chunks", len(vectors), len(batch))
	}

	for i := range batch {
		batch[i].Embedding = vectors[i]
	}
	return nil
}

// EmbedQuery embeds a single question with the same model used for chunks
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("provider returned %d embeddings for 1 query", len(vectors))
	}
	return vectors[0], nil
}
