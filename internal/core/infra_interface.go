package core

import (
	"context"
	"io"

	"github.com/markdave123-py/examvault/internal/models"
)

// MetadataSink persists documents, papers and chunks. Every write is idempotent
// under the identity keys of the entity it stores.
type MetadataSink interface {
	DocumentExists(ctx context.Context, contentHash string) (*models.Document, error)
	SaveDocument(ctx context.Context, doc *models.Document, userID string) error
	UpdateDocumentStatus(ctx context.Context, contentHash string, status models.DocumentStatus) error
	SavePapers(ctx context.Context, contentHash string, papers []models.Paper) ([]models.Paper, error)
	SaveChunk(ctx context.Context, chunk *models.Chunk) error
	LinkUserDocument(ctx context.Context, userID, contentHash string) error
	ListUserDocuments(ctx context.Context, userID string) ([]models.Document, error)
}

// JobRepository stores ingestion job snapshots.
type JobRepository interface {
	Create(ctx context.Context, job *models.IngestionJob) error
	Update(ctx context.Context, job *models.IngestionJob) error
	Get(ctx context.Context, jobID string) (*models.IngestionJob, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// VectorStore is the similarity index holding chunk segments.
type VectorStore interface {
	Upsert(ctx context.Context, points []models.VectorPoint) error
	Search(ctx context.Context, vector []float32, filter models.SearchFilter, limit int) ([]models.SearchHit, error)
}

// ObjectClient stores archived source files.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
