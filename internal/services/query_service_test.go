package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/models"
)

func userDocs() *docSink {
	return &docSink{docs: map[string][]models.Document{
		"u1": {
			{ContentHash: "done1", Status: models.DocumentCompleted},
			{ContentHash: "busy", Status: models.DocumentProcessing},
			{ContentHash: "done2", Status: models.DocumentCompleted},
		},
	}}
}

func TestAskSearchesCompletedDocuments(t *testing.T) {
	vectors := &stubVectors{hits: []models.SearchHit{{
		ID: "p1", Score: 0.9,
		Payload: models.ChunkPayload{Text: "Q3. Explain AVL rotations.", Filename: "dsa.pdf", PageStart: 9, PageEnd: 16, SubjectCode: "CSC 201", AcademicYear: "2023"},
	}}}
	llm := &stubLLM{reply: " Rotate left then right. "}
	emb := &stubEmbedder{fails: 1}
	svc := NewQueryService(userDocs(), vectors, emb, llm, testPolicy(), nil)

	ans, err := svc.Ask(context.Background(), "u1", "How do AVL rotations work?", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, "Rotate left then right.", ans.Answer)
	assert.Len(t, ans.Sources, 1)
	assert.Equal(t, []string{"done1", "done2"}, vectors.filter.DocumentHashes)
	assert.Equal(t, DefaultTopK, vectors.limit)
	assert.Equal(t, 2, emb.calls)
	assert.True(t, contains(llm.prompt, "dsa.pdf pages 9-16 (CSC 201, 2023)"))
	assert.True(t, contains(llm.prompt, "Question: How do AVL rotations work?"))
}

func TestAskNarrowsToRequestedDocuments(t *testing.T) {
	vectors := &stubVectors{}
	svc := NewQueryService(userDocs(), vectors, &stubEmbedder{}, &stubLLM{reply: "ok"}, testPolicy(), nil)

	_, err := svc.Ask(context.Background(), "u1", "q", []string{"done2", "busy", "someone-elses"}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"done2"}, vectors.filter.DocumentHashes)
	assert.Equal(t, maxTopK, vectors.limit)
}

func TestAskSearchDoesNotSpendModelTokens(t *testing.T) {
	// two tokens cover the embedding and the answer, nothing else
	modelPolicy := retry.New(1, time.Millisecond, 0, retry.WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 2)))
	vectors := &stubVectors{}
	svc := NewQueryService(userDocs(), vectors, &stubEmbedder{}, &stubLLM{reply: "ok"}, modelPolicy, nil,
		WithSearchPolicy(testPolicy()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ans, err := svc.Ask(ctx, "u1", "q", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", ans.Answer)
	assert.Equal(t, []string{"done1", "done2"}, vectors.filter.DocumentHashes)
}

func TestAskWithoutDocuments(t *testing.T) {
	emb := &stubEmbedder{}
	svc := NewQueryService(userDocs(), &stubVectors{}, emb, &stubLLM{}, testPolicy(), nil)

	ans, err := svc.Ask(context.Background(), "nobody", "q", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, noDocumentsAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, emb.calls)
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()

	svc := NewQueryService(userDocs(), &stubVectors{}, &stubEmbedder{}, &stubLLM{}, testPolicy(), nil)
	_, err := svc.Ask(ctx, "u1", "   ", nil, 0)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	svc = NewQueryService(&docSink{err: errors.New("db down")}, &stubVectors{}, &stubEmbedder{}, &stubLLM{}, testPolicy(), nil)
	_, err = svc.Ask(ctx, "u1", "q", nil, 0)
	assert.ErrorIs(t, err, core.ErrPersistence)

	svc = NewQueryService(userDocs(), &stubVectors{}, &stubEmbedder{fails: 10}, &stubLLM{}, testPolicy(), nil)
	_, err = svc.Ask(ctx, "u1", "q", nil, 0)
	assert.ErrorIs(t, err, core.ErrEmbedding)

	svc = NewQueryService(userDocs(), &stubVectors{}, &stubEmbedder{}, &stubLLM{err: errors.New("400 bad prompt")}, testPolicy(), nil)
	_, err = svc.Ask(ctx, "u1", "q", nil, 0)
	assert.ErrorIs(t, err, core.ErrExternalService)
}
