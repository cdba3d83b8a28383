package core

import (
	"context"

	"github.com/markdave123-py/examvault/internal/models"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// PaperDetector finds the logical exam papers inside the page-marked text of one document.
// An empty result is valid.
type PaperDetector interface {
	DetectPapers(ctx context.Context, fullText string, totalPages int) ([]models.Paper, error)
}
