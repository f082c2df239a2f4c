//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/repository"
	"github.com/cloo-solutions/docchat/internal/server"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/storage"
	"github.com/cloo-solutions/docchat/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	// fakeAnswer is what the fake chat endpoint always replies
	fakeAnswer = "According to the handbook, refunds take 14 days."
	testBucket = "test-documents"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	DatabaseURL  string
	S3Endpoint   string
	Pool         *pgxpool.Pool
	Files        *storage.S3Store
	Provider     *httptest.Server
	Pipeline     *service.Pipeline
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers, a fake
// model provider, the ingest worker and the HTTP server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	databaseURL := testutil.StartPostgres(ctx, t)
	s3Endpoint := testutil.StartS3(ctx, t)

	if err := database.RunMigrations(databaseURL, zap.NewNop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	pool, err := database.NewPool(ctx, database.Config{URL: databaseURL})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	files, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:        s3Endpoint,
		Region:          testutil.S3Region,
		AccessKeyID:     testutil.S3AccessKey,
		SecretAccessKey: testutil.S3SecretKey,
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}
	if err := files.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env := &E2ETestEnv{
		T:           t,
		Ctx:         ctx,
		DatabaseURL: databaseURL,
		S3Endpoint:  s3Endpoint,
		Pool:        pool,
		Files:       files,
		Provider:    newFakeProvider(),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Provider != nil {
		e.Provider.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// newFakeProvider serves OpenAI-compatible embedding and chat endpoints.
// Every text embeds to the same vector so every chunk matches every question.
func newFakeProvider() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{0.6, 0.8, 0}}
			}
			json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "fake"})
		case "/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "cmpl-e2e",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": fakeAnswer},
					"finish_reason": "stop",
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

// startServer wires the services the way serve does and starts the HTTP server
func (e *E2ETestEnv) startServer(port int) (string, func()) {
	logger := zaptest.NewLogger(e.T, zaptest.Level(zap.WarnLevel))

	documents := repository.NewDocumentRepository(e.Pool)
	chunks := repository.NewDocumentChunkRepository(e.Pool)
	ingestJobs := repository.NewIngestJobRepository(e.Pool)

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              "e2e",
		BaseURL:             e.Provider.URL,
		EmbeddingDimensions: 3,
	})
	e.Pipeline = service.NewPipeline(service.PipelineDeps{
		Extractor: extract.NewExtractor(5 * time.Second),
		Embedder:  service.NewEmbedder(client, service.EmbedderConfig{BatchSize: 10}, logger),
		Answers:   service.NewAnswerGenerator(client, service.DefaultAnswerConfig()),
		Documents: documents,
		Chunks:    chunks,
		Logger:    logger,
	}, service.DefaultPipelineConfig())
	if err := e.Pipeline.Initialize(e.Ctx); err != nil {
		e.T.Fatalf("failed to initialize pipeline: %v", err)
	}

	txRunner := repository.NewTxRunner(e.Pool)
	docs := service.NewDocumentService(service.DocumentServiceConfig{
		Documents: documents,
		Jobs:      ingestJobs,
		TxRunner:  txRunner,
		Files:     e.Files,
		Pipeline:  e.Pipeline,
		Logger:    logger,
	})
	convs := service.NewConversationService(service.ConversationServiceConfig{
		Documents:     documents,
		Conversations: repository.NewConversationRepository(e.Pool),
		TxRunner:      txRunner,
		Logger:        logger,
	})

	workerCtx, cancelWorker := context.WithCancel(e.Ctx)
	worker := jobs.NewWorker(jobs.NewIngestWorker(ingestJobs, docs, logger), 100*time.Millisecond, logger)
	go worker.Start(workerCtx)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler:     handlers.NewDocumentHandler(docs, service.DefaultMaxUploadBytes),
		QueryHandler:        handlers.NewQueryHandler(e.Pipeline, convs, logger),
		ConversationHandler: handlers.NewConversationHandler(convs),
		CORSOrigins:         []string{"*"},
		Logger:              logger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		worker.Stop()
		cancelWorker()
	}
}

// BuildBinaries builds the docchatd binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "docchat-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "docchatd"), "./cmd/docchatd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build docchatd: %v\n%s", err, out)
	}
}

// RunDocchatd runs the docchatd CLI against the test database and provider
func (e *E2ETestEnv) RunDocchatd(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "docchatd"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"DOCCHAT_DATABASE_URL="+e.DatabaseURL,
		"DOCCHAT_OPENAI_API_KEY=e2e",
		"DOCCHAT_OPENAI_BASE_URL="+e.Provider.URL,
		"DOCCHAT_EMBEDDING_DIMENSIONS=3",
		"DOCCHAT_EMBEDDING_BATCH_INTERVAL=0s",
		// Same bucket as the in-process server, whose worker may pick up the job.
		"DOCCHAT_S3_ENDPOINT="+e.S3Endpoint,
		"DOCCHAT_S3_ACCESS_KEY_ID="+testutil.S3AccessKey,
		"DOCCHAT_S3_SECRET_ACCESS_KEY="+testutil.S3SecretKey,
		"DOCCHAT_S3_BUCKET="+testBucket,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int             `json:"-"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

// Patch performs a PATCH request
func (e *E2ETestEnv) Patch(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPatch, path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return e.send(req)
}

// Upload posts content as a multipart file upload
func (e *E2ETestEnv) Upload(filename string, content []byte) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/documents/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return e.send(req)
}

func (e *E2ETestEnv) send(req *http.Request) (*APIResponse, error) {
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}
	return &apiResp, nil
}

// WaitForStatus polls a document until it leaves processing
func (e *E2ETestEnv) WaitForStatus(id string, timeout time.Duration) handlers.DocumentResponse {
	deadline := time.Now().Add(timeout)
	var doc handlers.DocumentResponse
	for time.Now().Before(deadline) {
		resp, err := e.Get("/documents/" + id)
		if err == nil && resp.StatusCode == http.StatusOK {
			if err := json.Unmarshal(resp.Data, &doc); err == nil && doc.Status != "processing" {
				return doc
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("document %s still processing after %v", id, timeout)
	return doc
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
