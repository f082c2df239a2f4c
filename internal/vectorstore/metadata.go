package vectorstore

import "github.com/cloo-solutions/docchat/internal/domain"

func metadataMap(m domain.ChunkMetadata) map[string]any {
	meta := map[string]any{
		"documentId":   m.DocumentID,
		"chunkIndex":   m.ChunkIndex,
		"startChar":    m.StartChar,
		"endChar":      m.EndChar,
		"documentName": m.DocumentName,
	}
	if m.Section != "" {
		meta["section"] = m.Section
	}
	return meta
}

// Chunk rebuilds the TextChunk the entry was created from. Metadata values
// may be ints or, after an Import, JSON float64s.
func (e Entry) Chunk() domain.TextChunk {
	return domain.TextChunk{
		ID:      e.ID,
		Content: e.Content,
		Metadata: domain.ChunkMetadata{
			DocumentID:   e.DocumentID,
			ChunkIndex:   intValue(e.Metadata["chunkIndex"]),
			StartChar:    intValue(e.Metadata["startChar"]),
			EndChar:      intValue(e.Metadata["endChar"]),
			DocumentName: stringValue(e.Metadata["documentName"]),
			Section:      stringValue(e.Metadata["section"]),
		},
		Embedding: e.Embedding,
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
