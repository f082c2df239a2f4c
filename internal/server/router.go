package server

import (
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// defaultMaxBodyBytes bounds JSON request bodies. Uploads get their own limit.
const defaultMaxBodyBytes int64 = 1 << 20

type RouterConfig struct {
	DocumentHandler     *handlers.DocumentHandler
	QueryHandler        *handlers.QueryHandler
	ConversationHandler *handlers.ConversationHandler
	CORSOrigins         []string
	Logger              *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(cfg.DocumentHandler.MaxRequestBytes())).
			Post("/upload", cfg.DocumentHandler.Upload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(defaultMaxBodyBytes))

			r.Get("/", cfg.DocumentHandler.List)
			r.Post("/ask", cfg.QueryHandler.Ask)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Patch("/{id}", cfg.DocumentHandler.Update)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Post("/{id}/process", cfg.DocumentHandler.Process)
			r.Get("/{id}/messages", cfg.ConversationHandler.Messages)
		})
	})

	r.Get("/rag/stats", cfg.QueryHandler.Stats)

	return r
}
