package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

var (
	ErrJobTerminal    = errors.New("job already finished")
	ErrJobOverflow    = errors.New("more outcomes than sources")
	ErrUnknownOutcome = errors.New("unknown source outcome")
)

// JobTracker owns the counters of one ingestion job. Every mutation is
// written through to the repository; readers get consistent copies.
type JobTracker struct {
	mu   sync.Mutex
	job  *models.IngestionJob
	repo core.JobRepository
	now  func() time.Time
}

// NewJobTracker creates a job in the Processing state and stores it.
func NewJobTracker(ctx context.Context, repo core.JobRepository, userID string, totalSources int) (*JobTracker, error) {
	now := time.Now().UTC()
	job := &models.IngestionJob{
		JobID:        uuid.NewString(),
		UserID:       userID,
		TotalSources: totalSources,
		Errors:       []string{},
		Documents:    []string{},
		Status:       models.JobProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, job.Clone()); err != nil {
		return nil, fmt.Errorf("%w: create job: %v", core.ErrPersistence, err)
	}
	return &JobTracker{job: job, repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (t *JobTracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.JobID
}

func (t *JobTracker) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.UserID
}

// Snapshot returns a copy of the current state.
func (t *JobTracker) Snapshot() *models.IngestionJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone()
}

// Record applies the outcome of one source. processed always moves by one and
// exactly one of successful, failed or duplicates moves with it.
func (t *JobTracker) Record(ctx context.Context, source models.Source, outcome models.SourceOutcome, contentHash string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status != models.JobProcessing {
		return ErrJobTerminal
	}
	if t.job.Processed >= t.job.TotalSources {
		return ErrJobOverflow
	}

	next := t.job.Clone()
	switch outcome {
	case models.OutcomeSuccess:
		next.Successful++
		next.Documents = append(next.Documents, contentHash)
	case models.OutcomeDuplicate:
		next.Duplicates++
		next.Documents = append(next.Documents, contentHash)
	case models.OutcomeDownloadFailed, models.OutcomeCorrupt, models.OutcomeNoUsableChunks, models.OutcomeFailed:
		next.Failed++
		msg := string(outcome)
		if cause != nil {
			msg = cause.Error()
		}
		next.Errors = append(next.Errors, fmt.Sprintf("%s: %s", source.Label(), msg))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
	next.Processed++

	return t.commit(ctx, next)
}

// Complete marks the job finished after every source was attempted.
func (t *JobTracker) Complete(ctx context.Context) error {
	return t.finish(ctx, models.JobCompleted, nil)
}

// Fail marks the job failed because of an error outside per-source handling.
func (t *JobTracker) Fail(ctx context.Context, cause error) error {
	return t.finish(ctx, models.JobFailed, cause)
}

func (t *JobTracker) finish(ctx context.Context, status models.JobStatus, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Status != models.JobProcessing {
		return ErrJobTerminal
	}
	next := t.job.Clone()
	next.Status = status
	if cause != nil {
		next.Errors = append(next.Errors, fmt.Sprintf("pipeline: %s", cause.Error()))
	}
	return t.commit(ctx, next)
}

// commit must be called with t.mu held. The in-memory state advances even if
// the repository write fails so counters never go backwards.
func (t *JobTracker) commit(ctx context.Context, next *models.IngestionJob) error {
	next.UpdatedAt = t.now()
	t.job = next
	if err := t.repo.Update(ctx, next.Clone()); err != nil {
		return fmt.Errorf("%w: update job %s: %v", core.ErrPersistence, next.JobID, err)
	}
	return nil
}
