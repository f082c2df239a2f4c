//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkRecords(t *testing.T, doc *domain.Document, contents ...string) []domain.ChunkRecord {
	t.Helper()
	records := make([]domain.ChunkRecord, len(contents))
	for i, c := range contents {
		chunk := domain.TextChunk{
			ID:      domain.ChunkID(doc.ID, i),
			Content: c,
			Metadata: domain.ChunkMetadata{
				DocumentID:   doc.ID,
				ChunkIndex:   i,
				StartChar:    i * 10,
				EndChar:      i*10 + len(c),
				DocumentName: doc.OriginalName,
				Section:      "INTRO",
			},
		}
		if i%2 == 0 {
			chunk.Embedding = []float32{float32(i), 1, 0}
		}
		rec, err := domain.NewChunkRecord(chunk)
		require.NoError(t, err)
		records[i] = rec
	}
	return records
}

func TestDocumentChunkRepository_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	docs := NewDocumentRepository(pool)
	chunks := NewDocumentChunkRepository(pool)

	doc := createTestDocument(ctx, t, docs, "guide.pdf", time.Now())
	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, chunkRecords(t, doc, "first", "second", "third")))

	records, err := chunks.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.ChunkID(doc.ID, 0), records[0].ID)
	assert.Equal(t, "guide.pdf", records[0].DocumentName)
	assert.Equal(t, []float32{0, 1, 0}, records[0].Embedding)
	assert.Nil(t, records[1].Embedding)

	rebuilt, err := records[2].TextChunk()
	require.NoError(t, err)
	assert.Equal(t, "third", rebuilt.Content)
	assert.Equal(t, 20, rebuilt.Metadata.StartChar)
	assert.Equal(t, "INTRO", rebuilt.Metadata.Section)

	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, chunkRecords(t, doc, "only")))
	n, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDocumentChunkRepository_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	docs := NewDocumentRepository(pool)
	chunks := NewDocumentChunkRepository(pool)

	a := createTestDocument(ctx, t, docs, "a.pdf", time.Now())
	b := createTestDocument(ctx, t, docs, "b.pdf", time.Now())
	require.NoError(t, chunks.ReplaceChunks(ctx, a.ID, chunkRecords(t, a, "a1", "a2")))
	require.NoError(t, chunks.ReplaceChunks(ctx, b.ID, chunkRecords(t, b, "b1")))

	require.NoError(t, chunks.DeleteByDocument(ctx, a.ID))

	records, err := chunks.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, b.ID, records[0].DocumentID)
}

func TestDocumentChunkRepository_CascadeOnDocumentDelete(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	docs := NewDocumentRepository(pool)
	chunks := NewDocumentChunkRepository(pool)

	doc := createTestDocument(ctx, t, docs, "a.pdf", time.Now())
	require.NoError(t, chunks.ReplaceChunks(ctx, doc.ID, chunkRecords(t, doc, "x", "y")))
	require.NoError(t, docs.Delete(ctx, doc.ID))

	n, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
