package jobstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

var _ core.JobRepository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in process memory. Jobs are copied on the way
// in and out so callers never share state with the store.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*models.IngestionJob
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*models.IngestionJob)}
}

func (r *MemoryRepository) Create(_ context.Context, job *models.IngestionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobID]; ok {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	r.jobs[job.JobID] = job.Clone()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, job *models.IngestionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.JobID)
	}
	r.jobs[job.JobID] = job.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, jobID string) (*models.IngestionJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}
