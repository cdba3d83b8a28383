package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/models"
)

// DedupGate short-circuits documents whose content was already ingested.
type DedupGate struct {
	sink   core.MetadataSink
	policy *retry.Policy
}

func NewDedupGate(sink core.MetadataSink, policy *retry.Policy) *DedupGate {
	return &DedupGate{sink: sink, policy: policy}
}

// Lookup returns the completed document with this hash, or nil. Documents left
// in processing or failed state by an earlier run are not duplicates; they are
// ingested again and overwritten idempotently.
func (g *DedupGate) Lookup(ctx context.Context, contentHash string) (*models.Document, error) {
	doc, err := retry.Run(ctx, g.policy, "document_exists", func(ctx context.Context) (*models.Document, error) {
		return g.sink.DocumentExists(ctx, contentHash)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %v", core.ErrPersistence, contentHash, err)
	}
	if doc == nil || doc.Status != models.DocumentCompleted {
		return nil, nil
	}
	return doc, nil
}

// Link attaches the user to the document. Linking twice is a no-op.
func (g *DedupGate) Link(ctx context.Context, userID, contentHash string) error {
	err := g.policy.Do(ctx, "link_user_document", func(ctx context.Context) error {
		return g.sink.LinkUserDocument(ctx, userID, contentHash)
	})
	if err != nil {
		return fmt.Errorf("%w: link %s to %s: %v", core.ErrPersistence, userID, contentHash, err)
	}
	return nil
}
