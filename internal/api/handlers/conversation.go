package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ConversationService interface {
	Record(ctx context.Context, documentID, question, answer string) (*domain.Conversation, error)
	Messages(ctx context.Context, documentID string) ([]*domain.Message, error)
}

type ConversationHandler struct {
	svc ConversationService
}

func NewConversationHandler(svc ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	messages, err := h.svc.Messages(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := MessagesResponse{Messages: make([]MessageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Role:           string(m.Role),
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
		})
	}
	api.Success(w, http.StatusOK, resp)
}
