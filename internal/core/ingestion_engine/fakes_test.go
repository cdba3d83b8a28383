package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/models"
)

func testPolicy() *retry.Policy {
	return retry.New(3, time.Millisecond, 0, retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

type fakeDownloader struct {
	files map[string][]byte
	errs  map[string]error
}

func (f *fakeDownloader) Download(_ context.Context, url, dir string) (string, string, error) {
	if err, ok := f.errs[url]; ok {
		return "", "", err
	}
	data, ok := f.files[url]
	if !ok {
		return "", "", fmt.Errorf("%w: %s returned 404", core.ErrDownload, url)
	}
	name := filepath.Base(url)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", "", err
	}
	return path, name, nil
}

type fakeExtractor struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeExtractor) ExtractText(_ context.Context, pdf []byte) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return fmt.Sprintf("Question one. Define a finite automaton with an example. This chunk is %d bytes long.", len(pdf)), nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived map[string]bool
	removed  []string
}

func newFakeArchiver() *fakeArchiver { return &fakeArchiver{archived: map[string]bool{}} }

func (a *fakeArchiver) Archive(_ context.Context, hash string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived[hash] = true
	return "https://archive.example/documents/" + hash + ".pdf", nil
}

func (a *fakeArchiver) Remove(_ context.Context, hash string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.archived, hash)
	a.removed = append(a.removed, hash)
	return nil
}

type fakeDetector struct {
	papers  []models.Paper
	err     error
	explode bool
}

func (f *fakeDetector) DetectPapers(context.Context, string, int) ([]models.Paper, error) {
	if f.explode {
		panic("detector exploded")
	}
	out := make([]models.Paper, len(f.papers))
	copy(out, f.papers)
	return out, f.err
}

type fakeEmbedder struct {
	calls     atomic.Int32
	transient int32
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	n := f.calls.Add(1)
	if n <= f.transient {
		return nil, retry.Transient(errors.New("503 model overloaded"))
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeVectors struct {
	mu         sync.Mutex
	points     map[string]models.VectorPoint
	failChunks map[int]bool
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{points: map[string]models.VectorPoint{}, failChunks: map[int]bool{}}
}

func (f *fakeVectors) Upsert(_ context.Context, points []models.VectorPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		if f.failChunks[p.Payload.ChunkNumber] {
			return errors.New("vector store rejected write")
		}
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectors) Search(context.Context, []float32, models.SearchFilter, int) ([]models.SearchHit, error) {
	return nil, nil
}

func (f *fakeVectors) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// fakeSink mimics the uniqueness constraints of the relational store.
type fakeSink struct {
	mu        sync.Mutex
	docs      map[string]models.Document
	links     map[string]bool
	papers    map[string]map[int]models.Paper
	chunks    map[string]map[int]models.Chunk
	nextPaper int64
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		docs:   map[string]models.Document{},
		links:  map[string]bool{},
		papers: map[string]map[int]models.Paper{},
		chunks: map[string]map[int]models.Chunk{},
	}
}

func (s *fakeSink) DocumentExists(_ context.Context, hash string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[hash]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *fakeSink) SaveDocument(_ context.Context, doc *models.Document, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ContentHash] = *doc
	s.links[userID+"|"+doc.ContentHash] = true
	return nil
}

func (s *fakeSink) UpdateDocumentStatus(_ context.Context, hash string, status models.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[hash]
	if !ok {
		return core.ErrDocumentNotFound
	}
	d.Status = status
	s.docs[hash] = d
	return nil
}

func (s *fakeSink) SavePapers(_ context.Context, hash string, papers []models.Paper) ([]models.Paper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.papers[hash] == nil {
		s.papers[hash] = map[int]models.Paper{}
	}
	keep := map[int]bool{}
	for _, p := range papers {
		keep[p.Ordinal] = true
	}
	for ordinal := range s.papers[hash] {
		if !keep[ordinal] {
			delete(s.papers[hash], ordinal)
		}
	}
	out := make([]models.Paper, len(papers))
	for i, p := range papers {
		if existing, ok := s.papers[hash][p.Ordinal]; ok {
			p.ID = existing.ID
		} else {
			s.nextPaper++
			p.ID = s.nextPaper
		}
		s.papers[hash][p.Ordinal] = p
		out[i] = p
	}
	return out, nil
}

func (s *fakeSink) SaveChunk(_ context.Context, c *models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[c.DocumentHash] == nil {
		s.chunks[c.DocumentHash] = map[int]models.Chunk{}
	}
	s.chunks[c.DocumentHash][c.ChunkNumber] = *c
	return nil
}

func (s *fakeSink) LinkUserDocument(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[userID+"|"+hash] = true
	return nil
}

func (s *fakeSink) ListUserDocuments(_ context.Context, userID string) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for key := range s.links {
		if u, h, _ := strings.Cut(key, "|"); u == userID {
			out = append(out, s.docs[h])
		}
	}
	return out, nil
}

func (s *fakeSink) chunkList(hash string) []models.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chunk
	for _, c := range s.chunks[hash] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkNumber < out[j].ChunkNumber })
	return out
}
