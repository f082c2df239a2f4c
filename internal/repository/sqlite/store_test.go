package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "docchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createDocument(t *testing.T, store *Store, name string, createdAt time.Time) *domain.Document {
	t.Helper()
	id := uuid.NewString()
	d := domain.NewDocument(id, "documents/"+id+".pdf", name, domain.FileTypePDF, 2048, createdAt.UTC())
	require.NoError(t, store.Documents().Create(context.Background(), d))
	return d
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docchat.db")

	store, err := Open(path)
	require.NoError(t, err)
	createDocument(t, store, "a.pdf", time.Now())
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, path, store.Path())

	n, err := store.Documents().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	docs := store.Documents()

	older := createDocument(t, store, "old.pdf", time.Now().Add(-time.Hour))
	newer := createDocument(t, store, "new.pdf", time.Now())

	got, err := docs.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "old.pdf", got.OriginalName)
	assert.Equal(t, domain.FileTypePDF, got.FileType)
	assert.Equal(t, domain.DocumentStatusProcessing, got.Status)
	assert.WithinDuration(t, older.CreatedAt, got.CreatedAt, time.Millisecond)

	list, err := docs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	require.NoError(t, docs.UpdateStatus(ctx, older.ID, domain.DocumentStatusError, "bad file"))
	got, err = docs.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusError, got.Status)
	assert.Equal(t, "bad file", got.Error)

	require.NoError(t, docs.MarkReady(ctx, older.ID, 4))
	got, err = docs.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusReady, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 4, got.ChunkCount)

	require.NoError(t, docs.Delete(ctx, older.ID))
	_, err = docs.GetByID(ctx, older.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.ErrorIs(t, docs.Delete(ctx, older.ID), domain.ErrDocumentNotFound)
	assert.ErrorIs(t, docs.UpdateStatus(ctx, older.ID, domain.DocumentStatusReady, ""), domain.ErrDocumentNotFound)
}

func TestChunkRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunks := store.Chunks()
	doc := createDocument(t, store, "guide.pdf", time.Now())

	var records []domain.ChunkRecord
	for i, content := range []string{"alpha", "beta"} {
		rec, err := domain.NewChunkRecord(domain.TextChunk{
			ID:      domain.ChunkID(doc.ID, i),
			Content: content,
			Metadata: domain.ChunkMetadata{
				DocumentID: doc.ID, ChunkIndex: i, StartChar: i * 5, EndChar: i*5 + 5, DocumentName: "guide.pdf",
			},
			Embedding: []float32{0.25, float32(i), -1.5},
		})
		require.NoError(t, err)
		records = append(records, rec)
	}
	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, records))

	list, err := chunks.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []float32{0.25, 1, -1.5}, list[1].Embedding)
	assert.Equal(t, "guide.pdf", list[1].DocumentName)

	chunk, err := list[1].TextChunk()
	require.NoError(t, err)
	assert.Equal(t, "beta", chunk.Content)
	assert.Equal(t, 10, chunk.Metadata.EndChar)

	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, records[:1]))
	n, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// chunks follow their document out through the foreign key
	require.NoError(t, store.Documents().Delete(ctx, doc.ID))
	n, err = chunks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestJobRepository_ClaimAndRetry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	jobs := store.IngestJobs()
	doc := createDocument(t, store, "a.pdf", time.Now())

	base := time.Now().UTC()
	var ids []string
	for i := 0; i < 3; i++ {
		job := domain.NewIngestJob(uuid.NewString(), doc.ID, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, jobs.Create(ctx, job))
		ids = append(ids, job.ID)
	}

	claimed, err := jobs.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[1], claimed[1].ID)
	assert.Equal(t, domain.IngestJobStatusProcessing, claimed[0].Status)

	require.NoError(t, jobs.IncrementRetries(ctx, ids[0]))
	require.NoError(t, jobs.UpdateJobStatus(ctx, ids[0], domain.IngestJobStatusFailed, "gave up"))
	got, err := jobs.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.Retries)
	assert.Equal(t, "gave up", got.Error)
	require.NotNil(t, got.ProcessedAt)

	n, err := jobs.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := jobs.GetPendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	_, err = jobs.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrIngestJobNotFound)
}

func TestConversationRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	convs := store.Conversations()
	doc := createDocument(t, store, "guide.pdf", time.Now())
	other := createDocument(t, store, "other.pdf", time.Now())

	record := func(docID, question, answer string, at time.Time) string {
		c := &domain.Conversation{ID: uuid.NewString(), DocumentID: docID, Title: question, CreatedAt: at}
		require.NoError(t, convs.Create(ctx, c))
		// both turns share a timestamp; the user turn still lists first
		require.NoError(t, convs.AddMessage(ctx, &domain.Message{
			ID: uuid.NewString(), ConversationID: c.ID, Role: domain.MessageRoleAssistant, Content: answer, CreatedAt: at,
		}))
		require.NoError(t, convs.AddMessage(ctx, &domain.Message{
			ID: uuid.NewString(), ConversationID: c.ID, Role: domain.MessageRoleUser, Content: question, CreatedAt: at,
		}))
		return c.ID
	}

	now := time.Now()
	first := record(doc.ID, "q1", "a1", now.Add(-time.Minute))
	second := record(doc.ID, "q2", "a2", now)
	record(other.ID, "elsewhere", "no", now)

	messages, err := convs.ListMessagesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)

	got := make([]string, len(messages))
	for i, m := range messages {
		got[i] = string(m.Role) + ":" + m.Content
	}
	assert.Equal(t, []string{"user:q2", "assistant:a2", "user:q1", "assistant:a1"}, got)
	assert.Equal(t, second, messages[0].ConversationID)
	assert.Equal(t, first, messages[3].ConversationID)

	empty, err := convs.ListMessagesByDocument(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Documents().Delete(ctx, doc.ID))
	messages, err = convs.ListMessagesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestConversationRepository_UnknownDocument(t *testing.T) {
	store := newTestStore(t)

	err := store.Conversations().Create(context.Background(), &domain.Conversation{
		ID: uuid.NewString(), DocumentID: uuid.NewString(), Title: "q", CreatedAt: time.Now(),
	})

	assert.Error(t, err)
}

func TestTxRunner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	runner := store.TxRunner()

	id := uuid.NewString()
	doc := domain.NewDocument(id, "documents/"+id+".pdf", "a.pdf", domain.FileTypePDF, 1, time.Now().UTC())
	boom := errors.New("boom")

	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		require.NoError(t, repos.Documents().Create(ctx, doc))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = store.Documents().GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	err = runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return repos.IngestJobs().Create(ctx, domain.NewIngestJob(uuid.NewString(), id, time.Now().UTC()))
	})
	require.NoError(t, err)
	_, err = store.Documents().GetByID(ctx, id)
	assert.NoError(t, err)
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))

	in := []float32{0, 1.5, -2.25, 3.4e38}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Len(t, float32SliceToBytes(in), 16)
}
