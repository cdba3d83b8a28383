package ingestion_engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/metrics"
	"github.com/markdave123-py/examvault/internal/models"
)

// IngestConfig tunes the pipeline.
//
// PagesPerChunk:      page window handed to text extraction (8).
// MinChunkTextLength: chunks with less extracted text are dropped (50 chars).
// ExtractConcurrency: chunk extractions running at once for one document.
// WorkDir:            parent of the per-job temporary directories.
// Text:               token bounds for embedding segments.
type IngestConfig struct {
	PagesPerChunk      int
	MinChunkTextLength int
	ExtractConcurrency int
	QueueSize          int
	WorkDir            string
	Text               TextChunker
}

func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		PagesPerChunk:      DefaultPagesPerChunk,
		MinChunkTextLength: 50,
		ExtractConcurrency: 2,
		QueueSize:          64,
		Text:               DefaultTextChunker(),
	}
}

// Archiver keeps a durable copy of uploaded files and returns its location.
// Remove deletes the copy of a document that failed to ingest.
type Archiver interface {
	Archive(ctx context.Context, contentHash string, data []byte) (string, error)
	Remove(ctx context.Context, contentHash string) error
}

// Collaborators are the external services the pipeline calls.
// Fallback and Archiver are optional.
type Collaborators struct {
	Downloader core.Downloader
	Extractor  core.TextExtractor
	Fallback   core.TextExtractor
	Detector   core.PaperDetector
	Embedder   core.EmbeddingProvider
	Vectors    core.VectorStore
	Sink       core.MetadataSink
	Archiver   Archiver
}

// ingestTask is one queued job.
type ingestTask struct {
	tracker *JobTracker
	sources []models.Source
}

// DocumentIngestor runs ingestion jobs:
//
// deps:     external collaborators.
// chunker:  page splitter.
// dedup:    content-hash gate in front of the expensive steps.
// policy:   rate-limited retry policy for model calls (extract, detect, embed).
// storage:  retry policy for downloads, archive, vector and metadata writes.
// cfg:      runtime tuning knobs for the pipeline.
// jobs:     in-memory queue of jobs waiting for a worker.
type DocumentIngestor struct {
	deps    Collaborators
	chunker *PdfChunker
	dedup   *DedupGate
	policy  *retry.Policy
	storage *retry.Policy
	cfg     *IngestConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	jobs    chan ingestTask

	// closed is closed when the workers stop; stopped is set under mu once no
	// Enqueue can still be sending.
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	stopped   bool
}
