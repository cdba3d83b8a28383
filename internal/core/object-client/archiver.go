package objectclient

import (
	"bytes"
	"context"

	"github.com/markdave123-py/examvault/internal/core"
)

// Archiver keeps a copy of every uploaded PDF, keyed by its content hash.
type Archiver struct {
	client core.ObjectClient
	bucket string
}

func NewArchiver(client core.ObjectClient, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

func ArchiveKey(contentHash string) string {
	return "documents/" + contentHash + ".pdf"
}

func (a *Archiver) Archive(ctx context.Context, contentHash string, data []byte) (string, error) {
	return a.client.UploadFile(ctx, a.bucket, ArchiveKey(contentHash), bytes.NewReader(data), "application/pdf")
}

// Remove drops the archived copy of a document that failed to ingest.
func (a *Archiver) Remove(ctx context.Context, contentHash string) error {
	return a.client.DeleteFile(ctx, a.bucket, ArchiveKey(contentHash))
}
