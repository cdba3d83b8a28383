package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

func (c *DatabaseClient) Create(ctx context.Context, job *models.IngestionJob) error {
	errs, docs, err := encodeJobLists(job)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO ingestion_jobs
			(job_id, user_id, total_sources, processed, successful, failed, duplicates,
			 errors, documents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = c.db.ExecContext(ctx, q,
		job.JobID, job.UserID, job.TotalSources, job.Processed, job.Successful, job.Failed, job.Duplicates,
		errs, docs, string(job.Status), job.CreatedAt, job.UpdatedAt)
	return err
}

func (c *DatabaseClient) Update(ctx context.Context, job *models.IngestionJob) error {
	errs, docs, err := encodeJobLists(job)
	if err != nil {
		return err
	}
	const q = `
		UPDATE ingestion_jobs SET
			processed  = $2,
			successful = $3,
			failed     = $4,
			duplicates = $5,
			errors     = $6,
			documents  = $7,
			status     = $8,
			updated_at = $9
		WHERE job_id = $1
	`
	res, err := c.db.ExecContext(ctx, q,
		job.JobID, job.Processed, job.Successful, job.Failed, job.Duplicates,
		errs, docs, string(job.Status), job.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.JobID)
	}
	return nil
}

func (c *DatabaseClient) Get(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	const q = `
		SELECT job_id, user_id, total_sources, processed, successful, failed, duplicates,
		       errors, documents, status, created_at, updated_at
		FROM ingestion_jobs
		WHERE job_id = $1
	`
	var (
		job        models.IngestionJob
		errs, docs []byte
		status     string
	)
	err := c.db.QueryRowContext(ctx, q, jobID).Scan(
		&job.JobID, &job.UserID, &job.TotalSources, &job.Processed, &job.Successful, &job.Failed, &job.Duplicates,
		&errs, &docs, &status, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if err := decodeJobList(errs, &job.Errors); err != nil {
		return nil, fmt.Errorf("decode job errors: %w", err)
	}
	if err := decodeJobList(docs, &job.Documents); err != nil {
		return nil, fmt.Errorf("decode job documents: %w", err)
	}
	return &job, nil
}

// encodeJobLists renders the error and document lists as JSON arrays, never null.
func encodeJobLists(job *models.IngestionJob) (string, string, error) {
	if job == nil {
		return "", "", errors.New("nil job")
	}
	errs, err := json.Marshal(nonNil(job.Errors))
	if err != nil {
		return "", "", err
	}
	docs, err := json.Marshal(nonNil(job.Documents))
	if err != nil {
		return "", "", err
	}
	return string(errs), string(docs), nil
}

func decodeJobList(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		*dst = []string{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = []string{}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
