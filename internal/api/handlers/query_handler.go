package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/examvault/internal/api/middlewares"
	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/services"
)

type queryService interface {
	Ask(ctx context.Context, userID, question string, documentHashes []string, topK int) (*services.QueryAnswer, error)
}

type QueryHandler struct {
	query  queryService
	logger *zap.Logger
}

func NewQueryHandler(query queryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{query: query, logger: logger}
}

type QueryRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", core.ErrInvalidRequest))
		return
	}

	answer, err := h.query.Ask(r.Context(), userID, req.Query, req.Documents, req.TopK)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
