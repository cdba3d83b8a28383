package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/examvault/internal/models"
)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, tracker *JobTracker, sources []models.Source) error
	Run(ctx context.Context, tracker *JobTracker, sources []models.Source) error
}

var _ Ingestor = (*DocumentIngestor)(nil)
