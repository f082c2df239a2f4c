package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/logging"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/repository"
	"github.com/cloo-solutions/docchat/internal/repository/sqlite"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/storage"
	"github.com/cloo-solutions/docchat/internal/vectorstore"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// jobQueue is what the commands need from an ingest job repository
type jobQueue interface {
	service.IngestJobRepositoryInterface
	jobs.IngestJobRepository
	RequeueStale(ctx context.Context) (int64, error)
}

// app holds the components every command is wired from
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	documents service.DocumentRepositoryInterface
	chunks    service.ChunkRepositoryInterface
	jobs      jobQueue
	convRepo  service.ConversationRepositoryInterface
	txRunner  service.TxRunner
	files     service.FileStore
	pipeline  *service.Pipeline
	docs      *service.DocumentService
	convs     *service.ConversationService
	closers   []func()
}

type appOptions struct {
	migrate bool
}

// newApp loads configuration and builds storage, providers and services.
// Call close when done.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.openRepositories(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openFileStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.buildServices()
	return a, nil
}

func (a *app) openRepositories(ctx context.Context, opts appOptions) error {
	if a.cfg.UsesSQLite() {
		store, err := sqlite.Open(a.cfg.SQLitePath())
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.logger.Info("using sqlite database", zap.String("path", store.Path()))

		a.documents = store.Documents()
		a.chunks = store.Chunks()
		a.jobs = store.IngestJobs()
		a.convRepo = store.Conversations()
		a.txRunner = store.TxRunner()
		return nil
	}

	if opts.migrate {
		if err := database.RunMigrations(a.cfg.DatabaseURL, a.logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: a.cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.logger.Info("connected to database")

	a.documents = repository.NewDocumentRepository(pool)
	a.chunks = repository.NewDocumentChunkRepository(pool)
	a.jobs = repository.NewIngestJobRepository(pool)
	a.convRepo = repository.NewConversationRepository(pool)
	a.txRunner = repository.NewTxRunner(pool)
	return nil
}

func (a *app) openFileStore(ctx context.Context) error {
	if !a.cfg.HasS3() {
		files, err := storage.NewLocalStore(a.cfg.UploadDir)
		if err != nil {
			return fmt.Errorf("failed to open upload directory: %w", err)
		}
		a.files = files
		a.logger.Info("storing uploads on disk", zap.String("dir", a.cfg.UploadDir))
		return nil
	}

	files, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:        a.cfg.S3Endpoint,
		Region:          a.cfg.S3Region,
		AccessKeyID:     a.cfg.S3AccessKey,
		SecretAccessKey: a.cfg.S3SecretKey,
		Bucket:          a.cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := files.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	a.files = files
	a.logger.Info("S3 bucket ready", zap.String("bucket", a.cfg.S3Bucket))
	return nil
}

func (a *app) buildServices() {
	cfg := a.cfg

	var embedder *service.Embedder
	var answers *service.AnswerGenerator
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.ChatModel,
		})
		embedder = service.NewEmbedder(client, service.EmbedderConfig{
			BatchSize:     cfg.EmbeddingBatchSize,
			BatchInterval: cfg.EmbeddingBatchInterval,
		}, a.logger)

		answerCfg := service.DefaultAnswerConfig()
		answerCfg.MaxContextLength = cfg.MaxContextLength
		answers = service.NewAnswerGenerator(client, answerCfg)
	} else {
		a.logger.Warn("DOCCHAT_OPENAI_API_KEY not set; ingest and questions are unavailable")
	}

	a.pipeline = service.NewPipeline(service.PipelineDeps{
		Extractor: extract.NewExtractor(cfg.ExtractTimeout),
		Chunker:   service.NewChunker(),
		Embedder:  embedder,
		Answers:   answers,
		Store:     vectorstore.NewMemoryStore(a.logger),
		Documents: a.documents,
		Chunks:    a.chunks,
		Logger:    a.logger,
	}, service.PipelineConfig{
		Processing: domain.ProcessingOptions{
			ChunkSize:       cfg.ChunkSize,
			ChunkOverlap:    cfg.ChunkOverlap,
			IncludeMetadata: true,
		},
		SimilarityThreshold: cfg.SimilarityThreshold,
	})

	a.docs = service.NewDocumentService(service.DocumentServiceConfig{
		Documents:      a.documents,
		Jobs:           a.jobs,
		TxRunner:       a.txRunner,
		Files:          a.files,
		Pipeline:       a.pipeline,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         a.logger,
	})

	a.convs = service.NewConversationService(service.ConversationServiceConfig{
		Documents:     a.documents,
		Conversations: a.convRepo,
		TxRunner:      a.txRunner,
		Logger:        a.logger,
	})
}

// loadIndex fills the vector store from the snapshot when one is configured
// and present, reconciled with the stored chunks written since. Without a
// usable snapshot the index is built from the stored chunks alone.
func (a *app) loadIndex(ctx context.Context) error {
	if a.cfg.SnapshotPath != "" {
		restored, err := a.pipeline.Restore(a.cfg.SnapshotPath)
		switch {
		case err != nil:
			a.logger.Warn("snapshot unreadable, rebuilding index from database",
				zap.String("path", a.cfg.SnapshotPath), zap.Error(err))
		case restored:
			err := a.pipeline.Reconcile(ctx)
			if err == nil {
				return nil
			}
			a.logger.Warn("snapshot does not match database, rebuilding index",
				zap.String("path", a.cfg.SnapshotPath), zap.Error(err))
			a.pipeline.Store().Clear()
		}
	}
	return a.pipeline.Initialize(ctx)
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
