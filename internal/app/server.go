package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/examvault/internal/api/middlewares"
	"github.com/markdave123-py/examvault/internal/config"
	"github.com/markdave123-py/examvault/internal/services"
)

// Services are the use cases the HTTP layer exposes.
type Services struct {
	Users     *services.UserService
	Documents *services.DocumentService
	Ingest    *services.IngestService
	Query     *services.QueryService
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry, svc Services) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, logger, registry, svc),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func NewRouter(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry, svc Services) http.Handler {
	authHandler := handlers.NewAuthHandler(svc.Users, logger)
	docHandler := handlers.NewDocumentHandler(svc.Documents, logger)
	ingestHandler := handlers.NewIngestHandler(svc.Ingest, logger)
	queryHandler := handlers.NewQueryHandler(svc.Query, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(appMiddleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.With(middleware.Timeout(30*time.Second)).Post("/signup", authHandler.Signup)
		api.With(middleware.Timeout(30*time.Second)).Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Post("/ingest/url", ingestHandler.IngestURLs)
			protected.Post("/ingest/upload", ingestHandler.IngestUploads)
			protected.Get("/ingest/status/{jobId}", ingestHandler.GetStatus)
			protected.With(middleware.Timeout(2*time.Minute)).Post("/query", queryHandler.Query)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
