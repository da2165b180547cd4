package discovery

import (
	"context"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// ChatModel is the language-model capability the llm engine induces
// code sets with. Implemented by the OpenAI client.
type ChatModel interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder produces one vector per input text. Implemented by the
// OpenAI client's embedding endpoint.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OverviewResult is a discovery run plus a lightweight classification of
// the corpus against the discovered codes, used by cluster test runs.
// Unclassified holds texts no discovered code could account for; the
// caller decides their terminal bucket.
type OverviewResult struct {
	Codes        []domain.CodeDefinition
	Classified   domain.ClassifiedData
	Unclassified []string
}

// Engine is one code discovery strategy. Discover produces the candidate
// code set; Overview additionally classifies the corpus against it.
type Engine interface {
	Name() domain.EngineName
	Discover(ctx context.Context, texts []string, maxCodes, sampleSize int) ([]domain.CodeDefinition, error)
	Overview(ctx context.Context, texts []string, maxCodes, sampleSize int) (*OverviewResult, error)
}
