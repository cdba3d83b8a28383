package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/examvault/internal/config"
	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/cache"
	db "github.com/markdave123-py/examvault/internal/core/database"
	"github.com/markdave123-py/examvault/internal/core/ingestion_engine"
	"github.com/markdave123-py/examvault/internal/core/llm"
	objectclient "github.com/markdave123-py/examvault/internal/core/object-client"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/core/vectorstore"
	"github.com/markdave123-py/examvault/internal/metrics"
	"github.com/markdave123-py/examvault/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	DocProcessor ingestion_engine.Ingestor
	Server       *Server

	cfg     *config.Config
	logger  *zap.Logger
	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	logger.Info("database initialized and ready")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// model calls share the provider quota; storage and downloads do not
	policy := retry.New(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxJitter,
		retry.WithLimiter(rate.NewLimiter(rate.Limit(cfg.ExternalRPS), max(cfg.ExternalBurst, 1))),
		retry.WithLogger(logger),
		retry.WithMetrics(m),
	)
	storagePolicy := retry.New(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxJitter,
		retry.WithLogger(logger),
		retry.WithMetrics(m),
	)

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.closers = append(a.closers, geminiEmbedder.Close)

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}
	a.closers = append(a.closers, llmProvider.Close)

	embedder, err := a.embedder(appCtx, geminiEmbedder)
	if err != nil {
		a.Close()
		return nil, err
	}

	vectors, err := a.vectorStore(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	archiver, err := a.archiver(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	ingCfg := ingestion_engine.DefaultIngestConfig()
	ingCfg.PagesPerChunk = cfg.PagesPerChunk
	ingCfg.MinChunkTextLength = cfg.MinChunkTextLength
	ingCfg.ExtractConcurrency = cfg.ExtractConcurrency
	ingCfg.WorkDir = cfg.WorkDir

	deps := ingestion_engine.Collaborators{
		Downloader: ingestion_engine.NewHTTPDownloader(cfg.DownloadTimeout),
		Extractor:  llmProvider,
		Fallback:   ingestion_engine.NewDocconvExtractor(false),
		Detector:   llm.NewPaperDetector(llmProvider, logger.Named("detector")),
		Embedder:   embedder,
		Vectors:    vectors,
		Sink:       dbClient,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}

	docIngestor, err := ingestion_engine.NewDocumentIngestor(deps, policy, ingCfg,
		ingestion_engine.WithStoragePolicy(storagePolicy),
		ingestion_engine.WithLogger(logger.Named("ingest")),
		ingestion_engine.WithMetrics(m),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.DocProcessor = docIngestor

	a.Server = NewServer(cfg, logger, registry, Services{
		Users:     services.NewUserService(dbClient, cfg.JWTSecret),
		Documents: services.NewDocumentService(dbClient),
		Ingest:    services.NewIngestService(docIngestor, dbClient, logger.Named("jobs")),
		Query:     services.NewQueryService(dbClient, vectors, embedder, llmProvider, policy, logger.Named("query"),
			services.WithSearchPolicy(storagePolicy),
		),
	})

	return a, nil
}

// Run starts the ingestion workers and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.DocProcessor.Start(ctx, a.cfg.IngestWorkers)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Server.Shutdown(shutdownCtx)
}

func (a *App) embedder(ctx context.Context, base *llm.GeminiEmbedder) (core.EmbeddingProvider, error) {
	if !a.cfg.RedisEnabled {
		return base, nil
	}
	store, err := cache.NewRedisStore(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.logger.Info("embedding cache enabled", zap.String("addr", a.cfg.RedisAddr))
	return cache.NewCachedEmbedder(base, store, base.ModelName(), a.cfg.CacheTTL, a.logger.Named("cache")), nil
}

func (a *App) vectorStore(ctx context.Context) (core.VectorStore, error) {
	if a.cfg.VectorBackend != config.VectorBackendWeaviate {
		return a.DBClient, nil
	}
	store, err := vectorstore.NewWeaviateStore(ctx, vectorstore.WeaviateConfig{
		Host:   a.cfg.WeaviateHost,
		Scheme: a.cfg.WeaviateScheme,
		APIKey: a.cfg.WeaviateAPIKey,
		Class:  a.cfg.WeaviateClass,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("weaviate vector store ready", zap.String("host", a.cfg.WeaviateHost))
	return store, nil
}

func (a *App) archiver(ctx context.Context) (*objectclient.Archiver, error) {
	if !a.cfg.ArchiveEnabled {
		return nil, nil
	}
	s3Client, err := objectclient.NewS3Client(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return objectclient.NewArchiver(s3Client, a.cfg.BucketName), nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
