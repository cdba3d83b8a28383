package services

import (
	"context"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
)

type DocumentService struct {
	sink core.MetadataSink
}

func NewDocumentService(sink core.MetadataSink) *DocumentService {
	return &DocumentService{sink: sink}
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	docs, err := s.sink.ListUserDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}
