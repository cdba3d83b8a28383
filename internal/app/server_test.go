package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/config"
	"github.com/markdave123-py/examvault/internal/metrics"
)

func TestRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.New(registry).JobFinished("completed")

	r := NewRouter(&config.Config{JWTSecret: "secret"}, zap.NewNop(), registry, Services{})

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/documents", http.StatusUnauthorized},
		{http.MethodPost, "/api/ingest/url", http.StatusUnauthorized},
		{http.MethodGet, "/api/ingest/status/abc", http.StatusUnauthorized},
		{http.MethodPost, "/api/query", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "examvault_ingest_jobs_total")
}
