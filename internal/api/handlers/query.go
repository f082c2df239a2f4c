package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"go.uber.org/zap"
)

type QueryService interface {
	Query(ctx context.Context, question, documentID string, opts domain.QueryOptions) (*domain.QueryResult, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type QueryHandler struct {
	svc           QueryService
	conversations ConversationService
	logger        *zap.Logger
}

// NewQueryHandler creates a QueryHandler. Questions about one document are
// recorded in conversations when it is not nil.
func NewQueryHandler(svc QueryService, conversations ConversationService, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{svc: svc, conversations: conversations, logger: logger}
}

type AskRequest struct {
	Question       string `json:"question" validate:"required,max=4000"`
	DocumentID     string `json:"document_id" validate:"omitempty,uuid"`
	MaxSources     int    `json:"max_sources" validate:"gte=0,lte=50"`
	IncludeContext *bool  `json:"include_context"`
}

type SourceResponse struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Section      string  `json:"section,omitempty"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
}

type AskResponse struct {
	Answer         string           `json:"answer"`
	Sources        []SourceResponse `json:"sources"`
	Confidence     float64          `json:"confidence"`
	ProcessingTime int64            `json:"processing_time"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

func QueryResultToResponse(res *domain.QueryResult) *AskResponse {
	sources := make([]SourceResponse, 0, len(res.Sources))
	for _, s := range res.Sources {
		sources = append(sources, SourceResponse{
			ID:           s.ID,
			DocumentID:   s.Metadata.DocumentID,
			DocumentName: s.Metadata.DocumentName,
			ChunkIndex:   s.Metadata.ChunkIndex,
			Section:      s.Metadata.Section,
			Content:      s.Content,
			Similarity:   s.Similarity,
		})
	}
	return &AskResponse{
		Answer:         res.Answer,
		Sources:        sources,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTimeMillis(),
	}
}

func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		api.HandleError(w, err)
		return
	}

	opts := domain.DefaultQueryOptions()
	if req.MaxSources > 0 {
		opts.MaxSources = req.MaxSources
	}
	if req.IncludeContext != nil {
		opts.IncludeContext = *req.IncludeContext
	}

	res, err := h.svc.Query(r.Context(), req.Question, req.DocumentID, opts)
	if err != nil {
		h.logger.Warn("query failed", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
		api.HandleError(w, err)
		return
	}

	resp := QueryResultToResponse(res)
	if h.conversations != nil && req.DocumentID != "" {
		// the answer stands even when history cannot be written
		conv, err := h.conversations.Record(r.Context(), req.DocumentID, req.Question, res.Answer)
		if err != nil {
			h.logger.Warn("failed to record conversation", zap.String("document_id", req.DocumentID), zap.Error(err))
		} else {
			resp.ConversationID = conv.ID
		}
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}
