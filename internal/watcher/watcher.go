// Package watcher uploads PDF and DOCX files dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long a file must stay unchanged before upload.
const DefaultSettleDelay = time.Second

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Uploader accepts a file for ingest.
type Uploader interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
}

// Watcher turns files appearing in dir into uploads. Uploaded files move to
// dir/processed, rejected ones to dir/failed.
type Watcher struct {
	dir      string
	uploader Uploader
	settle   time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	// closed when Run returns
	done chan struct{}
}

func New(dir string, uploader Uploader, settle time.Duration, logger *zap.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		uploader: uploader,
		settle:   settle,
		logger:   logger.With(zap.String("inbox", dir)),
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
	}
}

// Run watches the inbox until ctx is cancelled. Files already present when
// it starts are uploaded too. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	for _, sub := range []string{w.dir, filepath.Join(w.dir, processedDir), filepath.Join(w.dir, failedDir)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("failed to create inbox dir: %w", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.logger.Info("inbox watcher started")

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to scan inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && accepts(e.Name()) {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.logger.Info("inbox watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleEvent(event); ok {
				w.schedule(path)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case path := <-w.ready:
			w.ingestFile(ctx, path)
		}
	}
}

// handleEvent reports whether event names a file that should be uploaded.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if filepath.Dir(event.Name) != filepath.Clean(w.dir) {
		return "", false
	}
	if !accepts(filepath.Base(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.settled(path) })
}

// settled hands path to Run, or drops it once Run has returned.
func (w *Watcher) settled(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	select {
	case w.ready <- path:
	case <-w.done:
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	logger := w.logger.With(zap.String("file", name))

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to read inbox file", zap.Error(err))
		}
		return
	}

	ctx, span := telemetry.StartTransaction(ctx, "inbox "+name, "inbox.ingest")
	defer span.End()

	doc, err := w.uploader.Upload(ctx, service.UploadInput{Filename: name, Data: data})
	if err != nil {
		span.SetError(err)
		logger.Warn("inbox upload rejected", zap.Error(err))
		w.move(path, failedDir, logger)
		return
	}

	logger.Info("inbox file uploaded", zap.String("document_id", doc.ID))
	w.move(path, processedDir, logger)
}

func (w *Watcher) move(path, sub string, logger *zap.Logger) {
	dest := filepath.Join(w.dir, sub, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + "-" + time.Now().UTC().Format("20060102T150405") + ext
	}
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("failed to move inbox file", zap.String("dest", dest), zap.Error(err))
	}
}

func accepts(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}
