package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the file itself.
const multipartOverhead = 1 << 20

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) (*domain.Document, error)
	Reprocess(ctx context.Context, id string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

type DocumentHandler struct {
	svc            DocumentService
	maxUploadBytes int64
}

func NewDocumentHandler(svc DocumentService, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &DocumentHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// MaxRequestBytes is the body limit the upload route needs.
func (h *DocumentHandler) MaxRequestBytes() int64 {
	return h.maxUploadBytes + multipartOverhead
}

type DocumentResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
	FileSize     int64  `json:"file_size"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	ChunkCount   int    `json:"chunk_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type UpdateDocumentRequest struct {
	Status string `json:"status" validate:"required,oneof=processing ready error"`
}

func DocumentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:           d.ID,
		Filename:     d.Filename,
		OriginalName: d.OriginalName,
		FileType:     string(d.FileType),
		FileSize:     d.FileSize,
		Status:       string(d.Status),
		Error:        d.Error,
		ChunkCount:   d.ChunkCount,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.HandleError(w, domain.ErrFileTooLarge)
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		api.HandleError(w, domain.ErrFileTooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	doc, err := h.svc.Upload(r.Context(), service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, DocumentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, DocumentToResponse(d))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentToResponse(doc))
}

func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateStruct(req); err != nil {
		api.HandleError(w, err)
		return
	}

	doc, err := h.svc.UpdateStatus(r.Context(), id, domain.DocumentStatus(req.Status))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentToResponse(doc))
}

func (h *DocumentHandler) Process(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Reprocess(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, DocumentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}
