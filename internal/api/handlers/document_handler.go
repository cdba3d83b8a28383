package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/examvault/internal/api/middlewares"
	"github.com/markdave123-py/examvault/internal/models"
)

type documentService interface {
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
}

type DocumentHandler struct {
	docs   documentService
	logger *zap.Logger
}

func NewDocumentHandler(docs documentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, logger: logger}
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}
