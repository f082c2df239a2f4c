package domain

import "time"

// NoInformationAnswer is returned when nothing relevant was retrieved, and is
// the sentence the model is told to use when the context lacks the answer.
const NoInformationAnswer = "I don't have enough information in the provided documents to answer this question."

// QueryOptions tunes retrieval for a single question.
type QueryOptions struct {
	MaxSources     int  `json:"max_sources" validate:"gte=0,lte=50"`
	IncludeContext bool `json:"include_context"`
}

// DefaultQueryOptions returns the retrieval defaults
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		MaxSources:     5,
		IncludeContext: true,
	}
}

// Source is a retrieved chunk together with its similarity to the question.
type Source struct {
	TextChunk
	Similarity float64 `json:"similarity"`
}

// QueryResult is the answer to a question plus the evidence used.
type QueryResult struct {
	Answer         string        `json:"answer"`
	Sources        []Source      `json:"sources"`
	Confidence     float64       `json:"confidence"`
	ProcessingTime time.Duration `json:"-"`
}

// ProcessingTimeMillis reports ProcessingTime in whole milliseconds
func (r *QueryResult) ProcessingTimeMillis() int64 {
	return r.ProcessingTime.Milliseconds()
}

// IngestReport summarizes one run of a document through the pipeline.
type IngestReport struct {
	DocumentID       string
	Method           string
	TextLength       int
	ChunkCount       int
	EmbeddedCount    int
	FailedBatchCount int
	UsedFallback     bool
}
