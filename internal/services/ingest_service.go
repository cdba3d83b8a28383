package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/ingestion_engine"
	"github.com/markdave123-py/examvault/internal/models"
)

// MaxSourcesPerJob bounds one ingestion request.
const MaxSourcesPerJob = 50

// UploadedFile is one multipart file of an upload job.
type UploadedFile struct {
	Filename string
	Data     []byte
}

type IngestService struct {
	ingestor ingestion_engine.Ingestor
	jobs     core.JobRepository
	logger   *zap.Logger
}

func NewIngestService(ing ingestion_engine.Ingestor, jobs core.JobRepository, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{ingestor: ing, jobs: jobs, logger: logger}
}

// CreateURLJob validates the URLs and queues them as one job.
func (s *IngestService) CreateURLJob(ctx context.Context, userID string, urls []string) (*models.IngestionJob, error) {
	sources := make([]models.Source, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %q is not an http(s) url", core.ErrInvalidRequest, raw)
		}
		sources = append(sources, models.Source{Kind: models.SourceURL, Value: raw})
	}
	return s.submit(ctx, userID, sources)
}

// CreateUploadJob queues uploaded PDF bytes as one job.
func (s *IngestService) CreateUploadJob(ctx context.Context, userID string, files []UploadedFile) (*models.IngestionJob, error) {
	sources := make([]models.Source, 0, len(files))
	for _, f := range files {
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", core.ErrInvalidRequest, f.Filename)
		}
		sources = append(sources, models.Source{
			Kind:     models.SourceFile,
			Filename: ingestion_engine.SanitizeFilename(f.Filename),
			Data:     f.Data,
		})
	}
	return s.submit(ctx, userID, sources)
}

func (s *IngestService) submit(ctx context.Context, userID string, sources []models.Source) (*models.IngestionJob, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", core.ErrInvalidRequest)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources", core.ErrInvalidRequest)
	}
	if len(sources) > MaxSourcesPerJob {
		return nil, fmt.Errorf("%w: at most %d sources per job", core.ErrInvalidRequest, MaxSourcesPerJob)
	}

	tracker, err := ingestion_engine.NewJobTracker(ctx, s.jobs, userID, len(sources))
	if err != nil {
		return nil, err
	}
	if err := s.ingestor.Enqueue(ctx, tracker, sources); err != nil {
		if ferr := tracker.Fail(context.WithoutCancel(ctx), err); ferr != nil {
			s.logger.Error("could not mark unqueued job failed", zap.String("job_id", tracker.ID()), zap.Error(ferr))
		}
		return nil, err
	}

	s.logger.Info("ingestion job queued",
		zap.String("job_id", tracker.ID()),
		zap.String("user_id", userID),
		zap.Int("sources", len(sources)),
	)
	return tracker.Snapshot(), nil
}

// GetStatus returns the job if it belongs to userID. Jobs of other users
// are reported as not found.
func (s *IngestService) GetStatus(ctx context.Context, userID, jobID string) (*models.IngestionJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if errors.Is(err, core.ErrJobNotFound) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, core.ErrJobNotFound
	}
	return job, nil
}
