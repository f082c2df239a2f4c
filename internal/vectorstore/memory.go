package vectorstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultLimit               = 5
	DefaultSimilarityThreshold = 0.5
)

// Entry is one embedded chunk held by the store.
type Entry struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"documentId"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// SearchOptions narrows a search. The zero value means no threshold, no
// document filter and the default limit; use DefaultSearchOptions for the
// usual 0.5 threshold.
type SearchOptions struct {
	Limit               int
	DocumentID          string
	SimilarityThreshold float64
}

// DefaultSearchOptions returns limit 5 and threshold 0.5 across all documents
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:               DefaultLimit,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// SearchResult pairs an entry with its cosine similarity to the query.
type SearchResult struct {
	Entry      Entry
	Similarity float64
}

type record struct {
	entry Entry
	seq   uint64
}

// MemoryStore is an in-memory vector index searched by brute-force cosine
// similarity. Safe for concurrent use; writers take the lock exclusively.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	nextSeq uint64
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		records: make(map[string]*record),
		logger:  logger,
		now:     time.Now,
	}
}

// AddEntries stores every chunk that carries an embedding, replacing any
// entry with the same chunk ID in place. Chunks without embeddings are
// skipped. A chunk whose dimension differs from the stored entries rejects
// the whole call.
func (s *MemoryStore) AddEntries(chunks []domain.TextChunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted, err := s.acceptLocked(chunks, s.dimensionLocked(""))
	if err != nil {
		return 0, err
	}
	s.insertLocked(accepted)
	return len(accepted), nil
}

// ReplaceDocument swaps every entry of documentID for chunks in one step, so
// searches see either the old entries or the new ones. Chunks must belong to
// documentID. On error the store is unchanged.
func (s *MemoryStore) ReplaceDocument(documentID string, chunks []domain.TextChunk) (int, error) {
	for _, c := range chunks {
		if c.Metadata.DocumentID != documentID {
			return 0, fmt.Errorf("chunk %s belongs to document %q, not %q", c.ID, c.Metadata.DocumentID, documentID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accepted, err := s.acceptLocked(chunks, s.dimensionLocked(documentID))
	if err != nil {
		return 0, err
	}
	s.deleteLocked(documentID)
	s.insertLocked(accepted)
	return len(accepted), nil
}

// acceptLocked drops chunks without embeddings and checks the rest against
// dim, where 0 means any dimension is accepted.
func (s *MemoryStore) acceptLocked(chunks []domain.TextChunk, dim int) ([]domain.TextChunk, error) {
	accepted := make([]domain.TextChunk, 0, len(chunks))
	for _, c := range chunks {
		if !c.HasEmbedding() {
			s.logger.Warn("skipping chunk without embedding",
				zap.String("chunk_id", c.ID),
				zap.String("document_id", c.Metadata.DocumentID))
			continue
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, domain.NewDimensionMismatchError(dim, len(c.Embedding)))
		}
		accepted = append(accepted, c)
	}
	return accepted, nil
}

func (s *MemoryStore) insertLocked(chunks []domain.TextChunk) {
	now := s.now()
	for _, c := range chunks {
		entry := Entry{
			ID:         c.ID,
			DocumentID: c.Metadata.DocumentID,
			Content:    c.Content,
			Embedding:  append([]float32(nil), c.Embedding...),
			Metadata:   metadataMap(c.Metadata),
			CreatedAt:  now,
		}
		if existing, ok := s.records[c.ID]; ok {
			existing.entry = entry
			continue
		}
		s.records[c.ID] = &record{entry: entry, seq: s.nextSeq}
		s.nextSeq++
	}
}

// Search returns the entries most similar to query, best first. Entries
// below the threshold are dropped and ties keep insertion order.
func (s *MemoryStore) Search(query []float32, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		result SearchResult
		seq    uint64
	}
	matches := make([]scored, 0)
	for _, r := range s.records {
		if opts.DocumentID != "" && r.entry.DocumentID != opts.DocumentID {
			continue
		}
		sim, err := CosineSimilarity(query, r.entry.Embedding)
		if err != nil {
			return nil, err
		}
		if sim < opts.SimilarityThreshold {
			continue
		}
		matches = append(matches, scored{result: SearchResult{Entry: r.entry, Similarity: sim}, seq: r.seq})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].result.Similarity != matches[j].result.Similarity {
			return matches[i].result.Similarity > matches[j].result.Similarity
		}
		return matches[i].seq < matches[j].seq
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = m.result
	}
	return results, nil
}

// GetByDocumentID returns the document's entries in insertion order
func (s *MemoryStore) GetByDocumentID(documentID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.orderedLocked(func(e Entry) bool { return e.DocumentID == documentID })
}

// DeleteByDocumentID removes every entry of the document and returns how many were removed
func (s *MemoryStore) DeleteByDocumentID(documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(documentID)
}

func (s *MemoryStore) deleteLocked(documentID string) int {
	removed := 0
	for id, r := range s.records {
		if r.entry.DocumentID == documentID {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// GetAll returns every entry in insertion order
func (s *MemoryStore) GetAll() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.orderedLocked(nil)
}

// Clear removes every entry
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*record)
	s.nextSeq = 0
}

// Count returns the number of entries
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Dimension returns the embedding length of stored entries, or 0 when empty
func (s *MemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dimensionLocked("")
}

// Export serializes every entry, in insertion order, as JSON.
func (s *MemoryStore) Export() ([]byte, error) {
	entries := s.GetAll()
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to export vector store: %w", err)
	}
	return data, nil
}

// Import replaces the whole store with the entries in data. On any error
// the store is left unchanged.
func (s *MemoryStore) Import(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to import vector store: %w", err)
	}

	dim := 0
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("failed to import vector store: entry without id")
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("failed to import vector store: entry %s has no embedding", e.ID)
		}
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %s: %w", e.ID, domain.NewDimensionMismatchError(dim, len(e.Embedding)))
		}
	}

	records := make(map[string]*record, len(entries))
	var seq uint64
	for _, e := range entries {
		if existing, ok := records[e.ID]; ok {
			existing.entry = e
			continue
		}
		records[e.ID] = &record{entry: e, seq: seq}
		seq++
	}

	s.mu.Lock()
	s.records = records
	s.nextSeq = seq
	s.mu.Unlock()
	return nil
}

// dimensionLocked returns the embedding length of stored entries, ignoring
// those of excludeDocumentID.
func (s *MemoryStore) dimensionLocked(excludeDocumentID string) int {
	for _, r := range s.records {
		if excludeDocumentID != "" && r.entry.DocumentID == excludeDocumentID {
			continue
		}
		return len(r.entry.Embedding)
	}
	return 0
}

func (s *MemoryStore) orderedLocked(keep func(Entry) bool) []Entry {
	recs := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		if keep == nil || keep(r.entry) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	entries := make([]Entry, len(recs))
	for i, r := range recs {
		entries[i] = r.entry
	}
	return entries
}
