package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func TestAccepts(t *testing.T) {
	assert.True(t, accepts("report.pdf"))
	assert.True(t, accepts("Report.DOCX"))
	assert.False(t, accepts("notes.txt"))
	assert.False(t, accepts(".hidden.pdf"))
	assert.False(t, accepts("~$draft.docx"))
	assert.False(t, accepts("archive.pdf.tmp"))
}

func TestHandleEvent(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, new(MockUploader), 0, nil)

	pdf := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	sub := filepath.Join(dir, "folder.pdf")
	require.NoError(t, os.Mkdir(sub, 0o755))
	nested := filepath.Join(dir, processedDir, "b.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("%PDF"), 0o644))

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"create pdf", fsnotify.Event{Name: pdf, Op: fsnotify.Create}, true},
		{"write pdf", fsnotify.Event{Name: pdf, Op: fsnotify.Write}, true},
		{"chmod ignored", fsnotify.Event{Name: pdf, Op: fsnotify.Chmod}, false},
		{"remove ignored", fsnotify.Event{Name: pdf, Op: fsnotify.Remove}, false},
		{"directory ignored", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
		{"nested ignored", fsnotify.Event{Name: nested, Op: fsnotify.Create}, false},
		{"missing file ignored", fsnotify.Event{Name: filepath.Join(dir, "gone.pdf"), Op: fsnotify.Create}, false},
		{"wrong extension", fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := w.handleEvent(tt.event)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, tt.event.Name, path)
			}
		})
	}
}

func TestIngestFile_MovesByOutcome(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, processedDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, failedDir), 0o755))

	uploader := new(MockUploader)
	w := New(dir, uploader, 0, nil)

	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.docx")
	require.NoError(t, os.WriteFile(good, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	uploader.On("Upload", mock.Anything, service.UploadInput{Filename: "good.pdf", Data: []byte("%PDF-1.4")}).
		Return(&domain.Document{ID: "doc-1"}, nil)
	uploader.On("Upload", mock.Anything, service.UploadInput{Filename: "bad.docx", Data: []byte("nope")}).
		Return(nil, domain.ErrFileTooLarge)

	w.ingestFile(context.Background(), good)
	w.ingestFile(context.Background(), bad)
	w.ingestFile(context.Background(), filepath.Join(dir, "vanished.pdf"))

	assert.FileExists(t, filepath.Join(dir, processedDir, "good.pdf"))
	assert.FileExists(t, filepath.Join(dir, failedDir, "bad.docx"))
	assert.NoFileExists(t, good)
	assert.NoFileExists(t, bad)
	uploader.AssertNumberOfCalls(t, "Upload", 2)
}

func TestRun_UploadsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.pdf"), []byte("%PDF-a"), 0o644))

	uploader := new(MockUploader)
	uploader.On("Upload", mock.Anything, mock.Anything).Return(&domain.Document{ID: "doc"}, nil)

	w := New(dir, uploader, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, processedDir, "existing.pdf"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropped.docx"), []byte("PK"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, processedDir, "dropped.docx"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	assert.FileExists(t, filepath.Join(dir, "ignored.txt"))
	uploader.AssertNumberOfCalls(t, "Upload", 2)
}

func TestSettled_DoesNotBlockAfterRunReturns(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, new(MockUploader), time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	// nobody drains ready any more
	for len(w.ready) < cap(w.ready) {
		w.ready <- "queued.pdf"
	}

	returned := make(chan struct{})
	go func() {
		w.settled(filepath.Join(dir, "late.pdf"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("settle callback blocked after the watcher stopped")
	}
}
