package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/examvault/internal/api/middlewares"
	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
	"github.com/markdave123-py/examvault/internal/services"
)

const (
	maxUploadBytes   = 200 << 20
	maxMemoryUpload  = 32 << 20
	maxURLBodyBytes  = 1 << 20
	uploadFieldName  = "files"
	singleFieldAlias = "file"
)

type ingestService interface {
	CreateURLJob(ctx context.Context, userID string, urls []string) (*models.IngestionJob, error)
	CreateUploadJob(ctx context.Context, userID string, files []services.UploadedFile) (*models.IngestionJob, error)
	GetStatus(ctx context.Context, userID, jobID string) (*models.IngestionJob, error)
}

type IngestHandler struct {
	ingest ingestService
	logger *zap.Logger
}

func NewIngestHandler(ingest ingestService, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{ingest: ingest, logger: logger}
}

type urlJobRequest struct {
	URLs []string `json:"urls"`
}

// IngestURLs queues a job for a list of PDF URLs and answers 202 with the job.
func (h *IngestHandler) IngestURLs(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req urlJobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxURLBodyBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", core.ErrInvalidRequest))
		return
	}

	job, err := h.ingest.CreateURLJob(r.Context(), userID, req.URLs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// IngestUploads queues a job for the PDFs of a multipart form.
func (h *IngestHandler) IngestUploads(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryUpload); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid multipart form", core.ErrInvalidRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File[uploadFieldName]...)
	headers = append(headers, r.MultipartForm.File[singleFieldAlias]...)
	if len(headers) == 0 {
		writeError(w, h.logger, fmt.Errorf("%w: no files", core.ErrInvalidRequest))
		return
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: read %s: %v", core.ErrInvalidRequest, fh.Filename, err))
			return
		}
		files = append(files, services.UploadedFile{Filename: fh.Filename, Data: data})
	}

	job, err := h.ingest.CreateUploadJob(r.Context(), userID, files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *IngestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	job, err := h.ingest.GetStatus(r.Context(), userID, chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
