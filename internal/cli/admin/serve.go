package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/server"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/cloo-solutions/docchat/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 30 * time.Second
	inboxSettle     = 2 * time.Second
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docchat API server, the ingest worker and, when DOCCHAT_INBOX_DIR is set, the inbox watcher",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCCHAT_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := newApp(ctx, appOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTelemetry()
	}

	if err := a.loadIndex(ctx); err != nil {
		// The API still serves uploads and listings without a query index.
		logger.Error("vector store not initialized", zap.Error(err))
	}

	if n, err := a.jobs.RequeueStale(ctx); err != nil {
		return fmt.Errorf("failed to requeue interrupted jobs: %w", err)
	} else if n > 0 {
		logger.Info("requeued interrupted ingest jobs", zap.Int64("count", n))
	}

	worker := jobs.NewWorker(jobs.NewIngestWorker(a.jobs, a.docs, logger), cfg.WorkerPollInterval, logger)
	go worker.Start(ctx)

	watchDone := make(chan struct{})
	if cfg.InboxDir != "" {
		w := watcher.New(cfg.InboxDir, a.docs, inboxSettle, logger)
		go func() {
			defer close(watchDone)
			if err := w.Run(ctx); err != nil {
				logger.Error("inbox watcher stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	documentHandler := handlers.NewDocumentHandler(a.docs, cfg.MaxUploadBytes)
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler:     documentHandler,
		QueryHandler:        handlers.NewQueryHandler(a.pipeline, a.convs, logger),
		ConversationHandler: handlers.NewConversationHandler(a.convs),
		CORSOrigins:         cfg.CORSOrigins,
		Logger:              logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			worker.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	worker.Stop()
	<-watchDone

	if cfg.SnapshotPath != "" {
		if err := a.pipeline.Snapshot(cfg.SnapshotPath); err != nil {
			logger.Error("failed to write vector store snapshot", zap.Error(err))
		}
	}

	logger.Info("server exited")
	return nil
}

// exitOnSignal is used by one-shot commands so Ctrl-C cancels in-flight provider calls.
func exitOnSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
