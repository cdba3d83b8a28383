package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/examvault/internal/api/middlewares"
	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/models"
	"github.com/markdave123-py/examvault/internal/services"
)

type stubIngest struct {
	urls  []string
	files []services.UploadedFile
	err   error
	job   *models.IngestionJob
}

func (s *stubIngest) CreateURLJob(_ context.Context, _ string, urls []string) (*models.IngestionJob, error) {
	s.urls = urls
	return s.job, s.err
}

func (s *stubIngest) CreateUploadJob(_ context.Context, _ string, files []services.UploadedFile) (*models.IngestionJob, error) {
	s.files = files
	return s.job, s.err
}

func (s *stubIngest) GetStatus(_ context.Context, userID, jobID string) (*models.IngestionJob, error) {
	if s.job == nil || jobID != s.job.JobID || userID != s.job.UserID {
		return nil, core.ErrJobNotFound
	}
	return s.job, nil
}

type stubQuery struct {
	question string
	err      error
}

func (s *stubQuery) Ask(_ context.Context, _, question string, _ []string, _ int) (*services.QueryAnswer, error) {
	s.question = question
	if s.err != nil {
		return nil, s.err
	}
	return &services.QueryAnswer{Answer: "42", Sources: []models.SearchHit{}}, nil
}

type stubAuth struct{ err error }

func (s *stubAuth) Signup(_ context.Context, first, email, _ string) (*models.User, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return &models.User{ID: "u1", FirstName: first, Email: email}, "tok", nil
}

func (s *stubAuth) Login(_ context.Context, email, _ string) (*models.User, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return &models.User{ID: "u1", Email: email}, "tok", nil
}

// asUser injects the user id the JWT middleware would set.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(appMiddleware.WithUserID(r.Context(), userID)))
		})
	}
}

func newRouter(ing *stubIngest, q *stubQuery) http.Handler {
	logger := zap.NewNop()
	ih := NewIngestHandler(ing, logger)
	qh := NewQueryHandler(q, logger)

	r := chi.NewRouter()
	r.Use(asUser("u1"))
	r.Post("/api/ingest/url", ih.IngestURLs)
	r.Post("/api/ingest/upload", ih.IngestUploads)
	r.Get("/api/ingest/status/{jobId}", ih.GetStatus)
	r.Post("/api/query", qh.Query)
	return r
}

func TestIngestURLs(t *testing.T) {
	ing := &stubIngest{job: &models.IngestionJob{JobID: "j1", UserID: "u1", TotalSources: 2, Status: models.JobProcessing}}
	srv := newRouter(ing, &stubQuery{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ingest/url",
		strings.NewReader(`{"urls":["https://a/x.pdf","https://a/y.pdf"]}`)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"https://a/x.pdf", "https://a/y.pdf"}, ing.urls)

	var job models.IngestionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "j1", job.JobID)
}

func TestIngestURLsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubIngest{}, &stubQuery{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newRouter(&stubIngest{err: core.ErrInvalidRequest}, &stubQuery{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(`{"urls":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestUploads(t *testing.T) {
	ing := &stubIngest{job: &models.IngestionJob{JobID: "j2", UserID: "u1", TotalSources: 2}}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newRouter(ing, &stubQuery{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ing.files, 2)
	assert.Equal(t, "a.pdf", ing.files[0].Filename)
	assert.Equal(t, []byte("%PDF-b.pdf"), ing.files[1].Data)
}

func TestIngestUploadsWithoutFiles(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "nothing"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newRouter(&stubIngest{}, &stubQuery{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatus(t *testing.T) {
	ing := &stubIngest{job: &models.IngestionJob{JobID: "j1", UserID: "u1", Processed: 1}}
	srv := newRouter(ing, &stubQuery{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingest/status/j1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingest/status/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuery(t *testing.T) {
	q := &stubQuery{}
	rec := httptest.NewRecorder()
	newRouter(&stubIngest{}, q).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"what is a heap?"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is a heap?", q.question)
	assert.JSONEq(t, `{"answer":"42","sources":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	newRouter(&stubIngest{}, &stubQuery{err: core.ErrExternalService}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"x"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProtectedHandlersRequireUser(t *testing.T) {
	h := NewQueryHandler(&stubQuery{}, zap.NewNop())
	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler(t *testing.T) {
	h := NewAuthHandler(&stubAuth{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Signup(rec, httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"first_name":"Ada","email":"ada@uni.edu","password":"longenough"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"tok"`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	NewAuthHandler(&stubAuth{err: core.ErrUserAlreadyExists}, zap.NewNop()).Signup(rec,
		httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(`{"email":"a@b.c","password":"x"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	NewAuthHandler(&stubAuth{err: core.ErrInvalidCredentials}, zap.NewNop()).Login(rec,
		httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
