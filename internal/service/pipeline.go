package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/cloo-solutions/docchat/internal/vectorstore"
	"go.uber.org/zap"
)

// TextExtractor turns stored file bytes into cleaned text, falling back to
// descriptive text when the format cannot be read.
type TextExtractor interface {
	Process(ctx context.Context, data []byte, filename string, fileType domain.FileType) extract.Result
}

// PipelineConfig holds the tunables of ingest and retrieval.
type PipelineConfig struct {
	Processing          domain.ProcessingOptions
	SimilarityThreshold float64
}

// DefaultPipelineConfig returns the pipeline defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processing:          domain.DefaultProcessingOptions(),
		SimilarityThreshold: vectorstore.DefaultSimilarityThreshold,
	}
}

// PipelineDeps are the collaborators a Pipeline is built from. Embedder and
// Answers are nil when no model provider is configured.
type PipelineDeps struct {
	Extractor TextExtractor
	Chunker   *Chunker
	Embedder  *Embedder
	Answers   *AnswerGenerator
	Store     *vectorstore.MemoryStore
	Documents DocumentRepositoryInterface
	Chunks    ChunkRepositoryInterface
	Logger    *zap.Logger
}

// Pipeline sequences ingest (extract, chunk, embed, index, persist) and
// query (embed, search, answer) over one vector store.
type Pipeline struct {
	extractor TextExtractor
	chunker   *Chunker
	embedder  *Embedder
	answers   *AnswerGenerator
	store     *vectorstore.MemoryStore
	documents DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	cfg       PipelineConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline creates a new Pipeline instance
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if deps.Chunker == nil {
		deps.Chunker = NewChunker()
	}
	if deps.Store == nil {
		deps.Store = vectorstore.NewMemoryStore(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Processing.ChunkSize == 0 {
		cfg.Processing = domain.DefaultProcessingOptions()
	}
	return &Pipeline{
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		answers:   deps.Answers,
		store:     deps.Store,
		documents: deps.Documents,
		chunks:    deps.Chunks,
		cfg:       cfg,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Store exposes the vector store the pipeline indexes into
func (p *Pipeline) Store() *vectorstore.MemoryStore {
	return p.store
}

func (p *Pipeline) ready() error {
	if p.embedder == nil || p.answers == nil {
		return domain.NewInitializationError("embedding and chat providers are not configured", nil)
	}
	return nil
}

// Initialize loads every persisted chunk into the vector store. It fails
// when no model provider is configured, since nothing could be queried.
func (p *Pipeline) Initialize(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}
	_, err := p.LoadStored(ctx)
	return err
}

// LoadStored indexes every persisted chunk that carries an embedding and
// reports how many entries were added. Unreadable rows are skipped.
func (p *Pipeline) LoadStored(ctx context.Context) (int, error) {
	chunks, err := p.storedChunks(ctx)
	if err != nil {
		return 0, err
	}

	added, err := p.store.AddEntries(chunks)
	if err != nil {
		return 0, domain.NewInitializationError("indexing stored chunks", err)
	}

	p.logger.Info("vector store initialized",
		zap.Int("stored_chunks", len(chunks)),
		zap.Int("indexed", added))
	return added, nil
}

// Reconcile brings an index restored from a snapshot up to date with the
// database. Each document with stored chunks has its entries replaced by
// them, and documents with no stored chunks are dropped.
func (p *Pipeline) Reconcile(ctx context.Context) error {
	chunks, err := p.storedChunks(ctx)
	if err != nil {
		return err
	}

	byDocument := make(map[string][]domain.TextChunk)
	var order []string
	for _, c := range chunks {
		id := c.Metadata.DocumentID
		if _, ok := byDocument[id]; !ok {
			order = append(order, id)
		}
		byDocument[id] = append(byDocument[id], c)
	}

	dropped := 0
	for _, e := range p.store.GetAll() {
		if _, ok := byDocument[e.DocumentID]; !ok {
			dropped += p.store.DeleteByDocumentID(e.DocumentID)
		}
	}

	indexed := 0
	for _, id := range order {
		n, err := p.store.ReplaceDocument(id, byDocument[id])
		if err != nil {
			return domain.NewInitializationError("indexing stored chunks", err)
		}
		indexed += n
	}

	p.logger.Info("vector store reconciled with database",
		zap.Int("indexed", indexed),
		zap.Int("dropped", dropped),
		zap.Int("entries", p.store.Count()))
	return nil
}

func (p *Pipeline) storedChunks(ctx context.Context) ([]domain.TextChunk, error) {
	records, err := p.chunks.ListAll(ctx)
	if err != nil {
		return nil, domain.NewInitializationError("loading stored chunks", err)
	}

	chunks := make([]domain.TextChunk, 0, len(records))
	for _, rec := range records {
		c, err := rec.TextChunk()
		if err != nil {
			p.logger.Warn("skipping unreadable stored chunk", zap.String("chunk_id", rec.ID), zap.Error(err))
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ProcessDocument runs one document through the ingest path and marks it
// ready. A failed attempt leaves the document's status to the caller and
// drops whatever it had indexed or stored for the document, so an errored
// document is never searchable.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc *domain.Document, data []byte) (*domain.IngestReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "Pipeline.ProcessDocument", telemetry.SpanAttributes{
		DocumentID: doc.ID,
		Operation:  "ingest",
	})
	defer span.End()

	report, err := p.ingest(ctx, doc, data)
	if err != nil {
		span.SetError(err)
		p.logger.Error("document processing failed", zap.String("document_id", doc.ID), zap.Error(err))
		p.discard(context.WithoutCancel(ctx), doc.ID)
		return nil, err
	}

	p.logger.Info("document processed",
		zap.String("document_id", doc.ID),
		zap.String("method", report.Method),
		zap.Int("text_length", report.TextLength),
		zap.Int("chunks", report.ChunkCount),
		zap.Int("embedded", report.EmbeddedCount),
		zap.Int("failed_batches", report.FailedBatchCount))
	return report, nil
}

// discard removes a document's vectors and stored chunks after a failed run
func (p *Pipeline) discard(ctx context.Context, documentID string) {
	removed := p.store.DeleteByDocumentID(documentID)
	if err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Error("failed to remove stored chunks of failed document",
			zap.String("document_id", documentID), zap.Error(err))
	}
	if removed > 0 {
		p.logger.Info("removed vectors of failed document",
			zap.String("document_id", documentID), zap.Int("entries", removed))
	}
}

func (p *Pipeline) ingest(ctx context.Context, doc *domain.Document, data []byte) (*domain.IngestReport, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	result := p.extractor.Process(ctx, data, doc.OriginalName, doc.FileType)
	if result.Metadata.ProcessingMethod == extract.MethodFallback {
		p.logger.Warn("text extraction failed, using fallback content",
			zap.String("document_id", doc.ID),
			zap.String("reason", result.Metadata.Error))
	}

	chunks, err := p.chunker.Chunk(result.Text, doc.ID, doc.OriginalName, p.cfg.Processing)
	if err != nil {
		return nil, fmt.Errorf("chunking document: %w", err)
	}

	embedded, failures := p.embedder.Embed(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]domain.ChunkRecord, 0, len(embedded))
	for _, c := range embedded {
		rec, err := domain.NewChunkRecord(c)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := p.chunks.ReplaceChunks(ctx, doc.ID, records); err != nil {
		return nil, fmt.Errorf("saving chunks: %w", err)
	}

	// Swapped in one step so a reprocessed document never drops out of search.
	added, err := p.store.ReplaceDocument(doc.ID, embedded)
	if err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}

	if err := p.documents.MarkReady(ctx, doc.ID, len(chunks)); err != nil {
		return nil, fmt.Errorf("marking document ready: %w", err)
	}

	return &domain.IngestReport{
		DocumentID:       doc.ID,
		Method:           result.Metadata.ProcessingMethod,
		TextLength:       len([]rune(result.Text)),
		ChunkCount:       len(chunks),
		EmbeddedCount:    added,
		FailedBatchCount: len(failures),
		UsedFallback:     result.Metadata.ProcessingMethod == extract.MethodFallback,
	}, nil
}

// Query answers question from the indexed chunks, optionally scoped to one
// document. Provider failures surface as *domain.QueryError; a dimension
// mismatch between the question and the index is returned as is.
func (p *Pipeline) Query(ctx context.Context, question, documentID string, opts domain.QueryOptions) (*domain.QueryResult, error) {
	start := p.now()
	ctx, span := telemetry.StartSpan(ctx, "Pipeline.Query", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "query",
	})
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if err := domain.ValidateStruct(opts); err != nil {
		return nil, err
	}
	if opts.MaxSources == 0 {
		opts.MaxSources = domain.DefaultQueryOptions().MaxSources
	}
	if err := p.ready(); err != nil {
		return nil, err
	}

	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		span.SetError(err)
		p.logger.Error("question embedding failed", zap.Error(err))
		return nil, domain.NewQueryError(err)
	}

	results, err := p.store.Search(vector, vectorstore.SearchOptions{
		Limit:               opts.MaxSources,
		DocumentID:          documentID,
		SimilarityThreshold: p.cfg.SimilarityThreshold,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		chunk := r.Entry.Chunk()
		chunk.Embedding = nil
		sources = append(sources, domain.Source{TextChunk: chunk, Similarity: r.Similarity})
	}

	if len(sources) == 0 {
		return &domain.QueryResult{
			Answer:         domain.NoInformationAnswer,
			Sources:        sources,
			Confidence:     0,
			ProcessingTime: p.now().Sub(start),
		}, nil
	}

	answer, err := p.answers.Generate(ctx, question, sources, opts.IncludeContext)
	if err != nil {
		span.SetError(err)
		p.logger.Error("answer generation failed", zap.Int("sources", len(sources)), zap.Error(err))
		return nil, domain.NewQueryError(err)
	}

	return &domain.QueryResult{
		Answer:         answer,
		Sources:        sources,
		Confidence:     p.answers.Confidence(sources),
		ProcessingTime: p.now().Sub(start),
	}, nil
}

// DeleteDocument drops a document's vectors and stored chunks
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	removed := p.store.DeleteByDocumentID(documentID)
	if err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting stored chunks: %w", err)
	}
	p.logger.Info("document vectors removed", zap.String("document_id", documentID), zap.Int("entries", removed))
	return nil
}

// Stats reports corpus totals
func (p *Pipeline) Stats(ctx context.Context) (*domain.Stats, error) {
	docs, err := p.documents.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	chunks, err := p.chunks.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	avg := 0.0
	if docs > 0 {
		avg = float64(chunks) / float64(docs)
	}
	return &domain.Stats{
		TotalDocuments:           docs,
		TotalChunks:              chunks,
		AverageChunksPerDocument: avg,
		TotalEmbeddings:          p.store.Count(),
	}, nil
}

// Snapshot writes the vector store to path, replacing any previous file
// only once the new one is complete.
func (p *Pipeline) Snapshot(path string) error {
	data, err := p.store.Export()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	p.logger.Info("vector store snapshot written", zap.String("path", path), zap.Int("entries", p.store.Count()))
	return nil
}

// Restore replaces the vector store with the snapshot at path. A missing
// file is not an error and reports false.
func (p *Pipeline) Restore(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := p.store.Import(data); err != nil {
		return false, err
	}

	p.logger.Info("vector store restored from snapshot", zap.String("path", path), zap.Int("entries", p.store.Count()))
	return true, nil
}
