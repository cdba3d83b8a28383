package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/examvault/internal/core"
	"github.com/markdave123-py/examvault/internal/core/retry"
	"github.com/markdave123-py/examvault/internal/models"
)

const (
	DefaultTopK = 5
	maxTopK     = 20

	noDocumentsAnswer  = "You have no processed exam papers yet. Ingest some papers and ask again."
	answerSystemPrompt = "You answer questions about past exam papers using only the excerpts provided. " +
		"Quote question numbers and the paper's subject code when you use an excerpt. " +
		"If the excerpts do not contain the answer, say 'I cannot find this in your papers.'"
)

// QueryAnswer is the generated answer with the excerpts it was grounded on.
type QueryAnswer struct {
	Answer  string             `json:"answer"`
	Sources []models.SearchHit `json:"sources"`
}

type QueryService struct {
	sink     core.MetadataSink
	vectors  core.VectorStore
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	policy   *retry.Policy
	search   *retry.Policy
	logger   *zap.Logger
}

type QueryOption func(*QueryService)

// WithSearchPolicy sets the policy for vector searches, which otherwise share
// the model policy.
func WithSearchPolicy(p *retry.Policy) QueryOption { return func(s *QueryService) { s.search = p } }

func NewQueryService(sink core.MetadataSink, vectors core.VectorStore, emb core.EmbeddingProvider, llm core.LLMProvider, policy *retry.Policy, logger *zap.Logger, opts ...QueryOption) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QueryService{sink: sink, vectors: vectors, embedder: emb, llm: llm, policy: policy, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.search == nil {
		s.search = policy
	}
	return s
}

// Ask answers question from the caller's completed documents. documentHashes,
// when given, narrows the search to those of the caller's documents.
func (s *QueryService) Ask(ctx context.Context, userID, question string, documentHashes []string, topK int) (*QueryAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", core.ErrInvalidRequest)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	topK = min(topK, maxTopK)

	docs, err := s.sink.ListUserDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", core.ErrPersistence, err)
	}
	hashes := searchableHashes(docs, documentHashes)
	if len(hashes) == 0 {
		return &QueryAnswer{Answer: noDocumentsAnswer, Sources: []models.SearchHit{}}, nil
	}

	vecs, err := retry.Run(ctx, s.policy, "embed_query", func(ctx context.Context) ([][]float32, error) {
		return s.embedder.EmbedTexts(ctx, []string{question})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for the question", core.ErrEmbedding, len(vecs))
	}

	hits, err := retry.Run(ctx, s.search, "vector_search", func(ctx context.Context) ([]models.SearchHit, error) {
		return s.vectors.Search(ctx, vecs[0], models.SearchFilter{DocumentHashes: hashes}, topK)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", core.ErrExternalService, err)
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}

	answer, err := retry.Run(ctx, s.policy, "generate_answer", func(ctx context.Context) (string, error) {
		return s.llm.Generate(ctx, answerSystemPrompt, BuildAnswerPrompt(question, hits))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %v", core.ErrExternalService, err)
	}

	s.logger.Debug("query answered", zap.String("user_id", userID), zap.Int("hits", len(hits)))
	return &QueryAnswer{Answer: strings.TrimSpace(answer), Sources: hits}, nil
}

// searchableHashes keeps completed documents, intersected with wanted when it is set.
func searchableHashes(docs []models.Document, wanted []string) []string {
	want := make(map[string]bool, len(wanted))
	for _, h := range wanted {
		want[h] = true
	}
	var out []string
	for _, d := range docs {
		if d.Status != models.DocumentCompleted {
			continue
		}
		if len(want) > 0 && !want[d.ContentHash] {
			continue
		}
		out = append(out, d.ContentHash)
	}
	return out
}

func BuildAnswerPrompt(question string, hits []models.SearchHit) string {
	var sb strings.Builder
	for i, h := range hits {
		p := h.Payload
		fmt.Fprintf(&sb, "[%d] %s pages %d-%d", i+1, p.Filename, p.PageStart, p.PageEnd)
		if p.SubjectCode != "" {
			fmt.Fprintf(&sb, " (%s", p.SubjectCode)
			if p.AcademicYear != "" {
				fmt.Fprintf(&sb, ", %s", p.AcademicYear)
			}
			sb.WriteString(")")
		}
		sb.WriteString("\n")
		sb.WriteString(p.Text)
		sb.WriteString("\n---\n")
	}
	return fmt.Sprintf("Excerpts:\n%s\nQuestion: %s", sb.String(), question)
}
