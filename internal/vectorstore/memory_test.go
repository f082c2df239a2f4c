package vectorstore

import (
	"errors"
	"sync"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(docID string, index int, content string, emb ...float32) domain.TextChunk {
	return domain.TextChunk{
		ID:      domain.ChunkID(docID, index),
		Content: content,
		Metadata: domain.ChunkMetadata{
			DocumentID:   docID,
			ChunkIndex:   index,
			StartChar:    index * 10,
			EndChar:      index*10 + len(content),
			DocumentName: docID + ".pdf",
			Section:      "Intro",
		},
		Embedding: emb,
	}
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	_, err = CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	var dimErr *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
}

func TestMemoryStore_AddEntriesSkipsUnembedded(t *testing.T) {
	s := NewMemoryStore(nil)

	added, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "alpha", 1, 0),
		chunk("d1", 1, "beta"),
		chunk("d1", 2, "gamma", 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 2, s.Dimension())
}

func TestMemoryStore_AddEntriesIsIdempotent(t *testing.T) {
	s := NewMemoryStore(nil)
	c := chunk("d1", 0, "alpha", 1, 0)

	_, err := s.AddEntries([]domain.TextChunk{c, chunk("d1", 1, "beta", 0, 1)})
	require.NoError(t, err)

	c.Content = "alpha v2"
	_, err = s.AddEntries([]domain.TextChunk{c})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Count())
	all := s.GetAll()
	assert.Equal(t, "alpha v2", all[0].Content)
	assert.Equal(t, "d1-1", all[1].ID)
}

func TestMemoryStore_AddEntriesDimensionMismatch(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "alpha", 1, 0)})
	require.NoError(t, err)

	_, err = s.AddEntries([]domain.TextChunk{chunk("d2", 0, "x", 1, 0, 0), chunk("d2", 1, "y", 1, 0)})
	var dimErr *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, s.Count(), "failed batch must not be partially applied")
}

func TestMemoryStore_SearchOrderingAndLimit(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "far", 0, 1),
		chunk("d1", 1, "close", 1, 0.1),
		chunk("d1", 2, "exact", 1, 0),
		chunk("d1", 3, "exact twin", 2, 0),
	})
	require.NoError(t, err)

	results, err := s.Search([]float32{1, 0}, SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "d1-2", results[0].Entry.ID)
	assert.Equal(t, "d1-3", results[1].Entry.ID, "ties keep insertion order")
	assert.Equal(t, "d1-1", results[2].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)

	again, err := s.Search([]float32{1, 0}, SearchOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, results, again)
}

func TestMemoryStore_SearchThreshold(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "orthogonal", 0, 1),
		chunk("d1", 1, "diagonal", 1, 1),
		chunk("d1", 2, "aligned", 1, 0),
	})
	require.NoError(t, err)

	results, err := s.Search([]float32{1, 0}, DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, DefaultSimilarityThreshold)
	}

	results, err = s.Search([]float32{1, 0}, SearchOptions{SimilarityThreshold: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aligned", results[0].Entry.Content)
}

func TestMemoryStore_SearchDocumentFilter(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "one", 1, 0),
		chunk("d2", 0, "two", 1, 0),
		chunk("d2", 1, "three", 0.9, 0.1),
	})
	require.NoError(t, err)

	results, err := s.Search([]float32{1, 0}, SearchOptions{DocumentID: "d2", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "d2", r.Entry.DocumentID)
	}
}

func TestMemoryStore_SearchDimensionMismatch(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "one", 1, 0)})
	require.NoError(t, err)

	_, err = s.Search([]float32{1, 0, 0}, DefaultSearchOptions())
	assert.Equal(t, domain.ErrCodeDimensionMismatch, domain.ErrorCode(err))
}

func TestMemoryStore_SearchEmpty(t *testing.T) {
	s := NewMemoryStore(nil)

	results, err := s.Search([]float32{1, 0}, DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_DeleteByDocumentID(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "one", 1, 0),
		chunk("d1", 1, "two", 1, 0),
		chunk("d2", 0, "three", 1, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, s.DeleteByDocumentID("d1"))
	assert.Equal(t, 0, s.DeleteByDocumentID("d1"))
	assert.Empty(t, s.GetByDocumentID("d1"))
	assert.Len(t, s.GetByDocumentID("d2"), 1)

	results, err := s.Search([]float32{1, 0}, SearchOptions{DocumentID: "d1"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "one", 1, 0)})
	require.NoError(t, err)

	s.Clear()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, s.Dimension())
}

func TestMemoryStore_ExportImport(t *testing.T) {
	src := NewMemoryStore(nil)
	_, err := src.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "one", 1, 0),
		chunk("d1", 1, "two", 0, 1),
		chunk("d2", 0, "three", 1, 1),
	})
	require.NoError(t, err)

	data, err := src.Export()
	require.NoError(t, err)

	dst := NewMemoryStore(nil)
	_, err = dst.AddEntries([]domain.TextChunk{chunk("old", 0, "stale", 5, 5)})
	require.NoError(t, err)

	require.NoError(t, dst.Import(data))
	assert.Equal(t, 3, dst.Count())
	assert.Empty(t, dst.GetByDocumentID("old"))

	restored := dst.GetAll()
	assert.Equal(t, []string{"d1-0", "d1-1", "d2-0"}, []string{restored[0].ID, restored[1].ID, restored[2].ID})

	c := restored[1].Chunk()
	assert.Equal(t, chunk("d1", 1, "two", 0, 1), c)
}

func TestMemoryStore_ImportInvalidLeavesStoreUntouched(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "one", 1, 0)})
	require.NoError(t, err)

	assert.Error(t, s.Import([]byte("{not json")))
	assert.Error(t, s.Import([]byte(`[{"id":"a","embedding":[1,0]},{"id":"b","embedding":[1]}]`)))
	assert.Equal(t, 1, s.Count())
}

func TestMemoryStore_ImportRejectsEntryWithoutEmbedding(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "one", 1, 0, 0)})
	require.NoError(t, err)

	err = s.Import([]byte(`[{"id":"a","documentId":"d2","embedding":[]},{"id":"b","documentId":"d2","embedding":[1,0,0]}]`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding")
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 3, s.Dimension())

	results, err := s.Search([]float32{1, 0, 0}, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryStore_ReplaceDocument(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "old one", 1, 0),
		chunk("d1", 1, "old two", 1, 0),
		chunk("d2", 0, "other", 0, 1),
	})
	require.NoError(t, err)

	added, err := s.ReplaceDocument("d1", []domain.TextChunk{
		chunk("d1", 0, "new one", 1, 1),
		chunk("d1", 1, "unembedded"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	entries := s.GetByDocumentID("d1")
	require.Len(t, entries, 1)
	assert.Equal(t, "new one", entries[0].Content)
	assert.Len(t, s.GetByDocumentID("d2"), 1)
}

func TestMemoryStore_ReplaceDocumentErrorLeavesEntries(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{
		chunk("d1", 0, "old", 1, 0),
		chunk("d2", 0, "other", 0, 1),
	})
	require.NoError(t, err)

	_, err = s.ReplaceDocument("d1", []domain.TextChunk{chunk("d1", 0, "wide", 1, 0, 0)})
	var dimErr *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)

	_, err = s.ReplaceDocument("d1", []domain.TextChunk{chunk("d2", 0, "wrong doc", 1, 0)})
	require.Error(t, err)

	entries := s.GetByDocumentID("d1")
	require.Len(t, entries, 1)
	assert.Equal(t, "old", entries[0].Content)
}

func TestMemoryStore_ReplaceOnlyDocumentMayChangeDimension(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "old", 1, 0)})
	require.NoError(t, err)

	_, err = s.ReplaceDocument("d1", []domain.TextChunk{chunk("d1", 0, "new", 1, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dimension())
}

func TestMemoryStore_ReplaceDocumentIsAtomicForReaders(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.AddEntries([]domain.TextChunk{chunk("d1", 0, "v0", 1, 0)})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, err := s.ReplaceDocument("d1", []domain.TextChunk{chunk("d1", 0, "v", 1, 0)})
			assert.NoError(t, err)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		results, err := s.Search([]float32{1, 0}, SearchOptions{DocumentID: "d1"})
		require.NoError(t, err)
		require.Len(t, results, 1)
	}
}

func TestMemoryStore_ConcurrentReadsDuringWrites(t *testing.T) {
	s := NewMemoryStore(nil)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := s.AddEntries([]domain.TextChunk{chunk("doc", w*100+i, "text", 1, float32(i))})
				assert.NoError(t, err)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := s.Search([]float32{1, 1}, SearchOptions{Limit: 3})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, s.Count())
}
