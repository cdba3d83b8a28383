package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/ingestion_engine"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, core.ErrUserAlreadyExists):
		status, msg = http.StatusConflict, "user exists"
	case errors.Is(err, core.ErrJobNotFound):
		status, msg = http.StatusNotFound, "job not found"
	case errors.Is(err, core.ErrDocumentNotFound):
		status, msg = http.StatusNotFound, "document not found"
	case errors.Is(err, ingestion_engine.ErrQueueClosed):
		status, msg = http.StatusServiceUnavailable, "ingestion queue unavailable"
	case errors.Is(err, core.ErrEmbedding), errors.Is(err, core.ErrExternalService):
		status, msg = http.StatusBadGateway, "upstream model unavailable"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
