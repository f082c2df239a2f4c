package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	var queueOnly bool

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload PDF or DOCX files",
		Long: `Upload PDF or DOCX files and run them through the ingest pipeline.

Examples:
  # Upload and process two files
  docchatd ingest handbook.pdf policy.docx

  # Only queue the files for a running server to process
  docchatd ingest --queue-only handbook.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, queueOnly)
		},
	}

	cmd.Flags().BoolVar(&queueOnly, "queue-only", false, "Queue the files without processing them now")

	return cli.WithJSONOutput(cmd)
}

func runIngest(cmd *cobra.Command, paths []string, queueOnly bool) error {
	ctx, stop := exitOnSignal()
	defer stop()

	a, err := newApp(ctx, appOptions{migrate: true})
	if err != nil {
		return err
	}
	defer a.close()

	uploaded := make([]*domain.Document, 0, len(paths))
	failed := 0
	for _, path := range paths {
		doc, err := uploadFile(ctx, a.docs, path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}
		uploaded = append(uploaded, doc)
	}

	if !queueOnly && len(uploaded) > 0 {
		uploaded, err = drainIngest(ctx, a, uploaded)
		if err != nil {
			return err
		}
	}

	if wantsJSON(cmd) {
		out := make([]*handlers.DocumentResponse, 0, len(uploaded))
		for _, d := range uploaded {
			out = append(out, handlers.DocumentToResponse(d))
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printDocuments(cmd.OutOrStdout(), uploaded)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be uploaded", failed, len(paths))
	}
	return nil
}

func uploadFile(ctx context.Context, docs *service.DocumentService, path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return docs.Upload(ctx, service.UploadInput{
		Filename: filepath.Base(path),
		Data:     data,
	})
}

// drainIngest runs queued jobs in this process until none of docs is still
// processing or the queue has nothing left to claim, then returns the
// refreshed documents.
func drainIngest(ctx context.Context, a *app, docs []*domain.Document) ([]*domain.Document, error) {
	worker := jobs.NewIngestWorker(a.jobs, a.docs, a.logger)

	for {
		claimed, err := worker.ProcessPending(ctx)
		if err != nil {
			return nil, err
		}

		refreshed := make([]*domain.Document, 0, len(docs))
		processing := false
		for _, d := range docs {
			cur, err := a.documents.GetByID(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			if cur.Status == domain.DocumentStatusProcessing {
				processing = true
			}
			refreshed = append(refreshed, cur)
		}
		docs = refreshed

		if !processing {
			return docs, nil
		}
		if claimed == 0 {
			a.logger.Info("remaining documents are being processed by another worker")
			return docs, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
