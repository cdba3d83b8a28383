package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

func TestMemoryRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	job := &models.IngestionJob{JobID: "j1", UserID: "u1", TotalSources: 2, Status: models.JobProcessing}
	require.NoError(t, repo.Create(ctx, job))
	assert.Error(t, repo.Create(ctx, job))

	job.Processed = 1
	job.Errors = append(job.Errors, "a.pdf: boom")
	got, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Processed, "stored job must not alias the caller's copy")

	require.NoError(t, repo.Update(ctx, job))
	got, err = repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Processed)
	assert.Equal(t, []string{"a.pdf: boom"}, got.Errors)

	got.Errors[0] = "mutated"
	again, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf: boom", again.Errors[0])
}

func TestMemoryRepositoryMissing(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrJobNotFound)

	err = repo.Update(context.Background(), &models.IngestionJob{JobID: "nope"})
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}
