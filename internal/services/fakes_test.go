package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/ingestion_engine"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/models"
)

func testPolicy() *retry.Policy {
	return retry.New(3, time.Millisecond, 0, retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

type queuedJob struct {
	tracker *ingestion_engine.JobTracker
	sources []models.Source
}

type fakeIngestor struct {
	mu     sync.Mutex
	queued []queuedJob
	err    error
}

func (f *fakeIngestor) Start(context.Context, int) {}

func (f *fakeIngestor) Enqueue(_ context.Context, tracker *ingestion_engine.JobTracker, sources []models.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, queuedJob{tracker: tracker, sources: sources})
	return nil
}

func (f *fakeIngestor) Run(context.Context, *ingestion_engine.JobTracker, []models.Source) error {
	return nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{users: map[string]*models.User{}} }

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.Email]; ok {
		return core.ErrUserAlreadyExists
	}
	cp := *u
	f.users[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// docSink serves a fixed document list per user.
type docSink struct {
	core.MetadataSink
	docs map[string][]models.Document
	err  error
}

func (s *docSink) ListUserDocuments(_ context.Context, userID string) ([]models.Document, error) {
	return s.docs[userID], s.err
}

type stubEmbedder struct {
	fails int
	calls int
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.calls <= s.fails {
		return nil, retry.Transient(errors.New("503 overloaded"))
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubVectors struct {
	hits   []models.SearchHit
	filter models.SearchFilter
	limit  int
}

func (s *stubVectors) Upsert(context.Context, []models.VectorPoint) error { return nil }

func (s *stubVectors) Search(_ context.Context, _ []float32, filter models.SearchFilter, limit int) ([]models.SearchHit, error) {
	s.filter, s.limit = filter, limit
	return s.hits, nil
}

type stubLLM struct {
	prompt string
	reply  string
	err    error
}

func (s *stubLLM) Generate(_ context.Context, _, user string) (string, error) {
	s.prompt = user
	return s.reply, s.err
}

func contains(haystack, needle string) bool { return strings.Contains(haystack, needle) }
