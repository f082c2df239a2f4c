package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context) ([]*domain.Document, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentService) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus) (*domain.Document, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Reprocess(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Query(ctx context.Context, question, documentID string, opts domain.QueryOptions) (*domain.QueryResult, error) {
	args := m.Called(ctx, question, documentID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueryResult), args.Error(1)
}

func (m *MockQueryService) Stats(ctx context.Context) (*domain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) Record(ctx context.Context, documentID, question, answer string) (*domain.Conversation, error) {
	args := m.Called(ctx, documentID, question, answer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationService) Messages(ctx context.Context, documentID string) ([]*domain.Message, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func newTestRouter(maxUpload int64) (http.Handler, *MockDocumentService, *MockQueryService) {
	router, docs, queries, _ := newTestRouterWithConversations(maxUpload)
	return router, docs, queries
}

func newTestRouterWithConversations(maxUpload int64) (http.Handler, *MockDocumentService, *MockQueryService, *MockConversationService) {
	docs := new(MockDocumentService)
	queries := new(MockQueryService)
	convs := new(MockConversationService)
	router := NewRouter(RouterConfig{
		DocumentHandler:     handlers.NewDocumentHandler(docs, maxUpload),
		QueryHandler:        handlers.NewQueryHandler(queries, convs, nil),
		ConversationHandler: handlers.NewConversationHandler(convs),
		CORSOrigins:         []string{"http://localhost:3000"},
	})
	return router, docs, queries, convs
}

func testDocument(id string) *domain.Document {
	return domain.NewDocument(id, "documents/"+id+".pdf", "a.pdf", domain.FileTypePDF, 10, time.Now().UTC())
}

func TestRouter_Health(t *testing.T) {
	router, _, _ := newTestRouter(0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_DocumentRoutes(t *testing.T) {
	router, docs, _ := newTestRouter(0)

	docs.On("List", mock.Anything).Return([]*domain.Document{testDocument("d1")}, nil)
	docs.On("Get", mock.Anything, "d1").Return(testDocument("d1"), nil)
	docs.On("UpdateStatus", mock.Anything, "d1", domain.DocumentStatusError).Return(testDocument("d1"), nil)
	docs.On("Reprocess", mock.Anything, "d1").Return(testDocument("d1"), nil)
	docs.On("Delete", mock.Anything, "d1").Return(nil)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/documents", "", http.StatusOK},
		{http.MethodGet, "/documents/d1", "", http.StatusOK},
		{http.MethodPatch, "/documents/d1", `{"status":"error"}`, http.StatusOK},
		{http.MethodPost, "/documents/d1/process", "", http.StatusAccepted},
		{http.MethodDelete, "/documents/d1", "", http.StatusOK},
		{http.MethodPut, "/documents/d1", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	docs.AssertExpectations(t)
}

func TestRouter_AskIsNotADocumentID(t *testing.T) {
	router, docs, queries := newTestRouter(0)
	queries.On("Query", mock.Anything, "hello?", "", domain.DefaultQueryOptions()).
		Return(&domain.QueryResult{Answer: domain.NoInformationAnswer, Sources: []domain.Source{}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/ask", strings.NewReader(`{"question":"hello?"}`)))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data handlers.AskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.NoInformationAnswer, resp.Data.Answer)
	assert.Zero(t, resp.Data.Confidence)
	docs.AssertNotCalled(t, "Reprocess", mock.Anything, mock.Anything)
}

func TestRouter_Stats(t *testing.T) {
	router, _, queries := newTestRouter(0)
	queries.On("Stats", mock.Anything).Return(&domain.Stats{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rag/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UploadBodyLimit(t *testing.T) {
	router, docs, _ := newTestRouter(32)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "big.pdf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 4<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	docs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _, _ := newTestRouter(0)

	req := httptest.NewRequest(http.MethodOptions, "/documents/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_DocumentMessages(t *testing.T) {
	router, _, _, convs := newTestRouterWithConversations(0)
	convs.On("Messages", mock.Anything, "d1").Return([]*domain.Message{
		{ID: "m1", ConversationID: "c1", Role: domain.MessageRoleUser, Content: "q"},
	}, nil)
	convs.On("Messages", mock.Anything, "d2").Return(nil, domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/d1/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data handlers.MessagesResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Messages, 1)
	assert.Equal(t, "q", resp.Data.Messages[0].Content)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/d2/messages", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
