package ingestion_engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/metrics"
	"github.com/markdave123-py/examvault/internal/models"
)

var ErrQueueClosed = errors.New("ingestion queue closed")

type Option func(*DocumentIngestor)

func WithLogger(l *zap.Logger) Option { return func(i *DocumentIngestor) { i.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(i *DocumentIngestor) { i.metrics = m } }

// WithStoragePolicy sets the policy for calls that are not model calls. It
// defaults to the model policy.
func WithStoragePolicy(p *retry.Policy) Option { return func(i *DocumentIngestor) { i.storage = p } }

// NewDocumentIngestor constructs the ingestor with a bounded job queue. policy
// wraps the model calls.
func NewDocumentIngestor(deps Collaborators, policy *retry.Policy, cfg *IngestConfig, opts ...Option) (*DocumentIngestor, error) {
	switch {
	case deps.Downloader == nil, deps.Extractor == nil, deps.Detector == nil,
		deps.Embedder == nil, deps.Vectors == nil, deps.Sink == nil:
		return nil, errors.New("ingestor: missing collaborator")
	case policy == nil:
		return nil, errors.New("ingestor: missing retry policy")
	}
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}

	i := &DocumentIngestor{
		deps:    deps,
		chunker: NewPdfChunker(cfg.PagesPerChunk),
		policy:  policy,
		cfg:     cfg,
		logger:  zap.NewNop(),
		jobs:    make(chan ingestTask, cfg.QueueSize),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.storage == nil {
		i.storage = policy
	}
	i.dedup = NewDedupGate(deps.Sink, i.storage)
	return i, nil
}

// Start runs numWorkers goroutines reading from the jobs channel. Jobs are
// independent, so they may run in parallel; sources inside a job never do.
// When ctx is done the queue closes and jobs still waiting in it are failed.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= max(numWorkers, 1); w++ {
		go func(w int) {
			for {
				if ctx.Err() != nil {
					i.logger.Info("ingestion worker shutting down", zap.Int("worker", w))
					return
				}
				select {
				case <-ctx.Done():
				case task := <-i.jobs:
					i.logger.Info("processing job",
						zap.String("job_id", task.tracker.ID()),
						zap.Int("worker", w),
						zap.Int("sources", len(task.sources)),
					)
					// jobs run to completion even if the caller stops polling
					if err := i.Run(context.WithoutCancel(ctx), task.tracker, task.sources); err != nil {
						i.logger.Error("job aborted", zap.String("job_id", task.tracker.ID()), zap.Error(err))
					}
				}
			}
		}(w)
	}

	go func() {
		<-ctx.Done()
		i.shutdown(context.WithoutCancel(ctx))
	}()
}

func (i *DocumentIngestor) shutdown(ctx context.Context) {
	i.closeOnce.Do(func() { close(i.closed) })

	i.mu.Lock()
	i.stopped = true
	i.mu.Unlock()

	for {
		select {
		case task := <-i.jobs:
			if err := task.tracker.Fail(ctx, ErrQueueClosed); err != nil {
				i.logger.Error("could not fail queued job", zap.String("job_id", task.tracker.ID()), zap.Error(err))
			}
			i.metrics.JobFinished(string(models.JobFailed))
			i.logger.Warn("queued job dropped at shutdown", zap.String("job_id", task.tracker.ID()))
		default:
			return
		}
	}
}

// Enqueue schedules a job. It blocks while the queue is full and returns
// ErrQueueClosed once the workers have stopped.
func (i *DocumentIngestor) Enqueue(ctx context.Context, tracker *JobTracker, sources []models.Source) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		return ErrQueueClosed
	}

	select {
	case i.jobs <- ingestTask{tracker: tracker, sources: sources}:
		return nil
	case <-i.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrQueueClosed, ctx.Err())
	}
}
