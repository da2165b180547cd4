package coding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// mockCompleter implements ChatCompleter with a canned answer function
type mockCompleter struct {
	calls   int
	respond func(call int, userPrompt string) (string, error)
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	return m.respond(m.calls, userPrompt)
}

// mockDiscoverer implements CodeDiscoverer
type mockDiscoverer struct {
	codes []domain.CodeDefinition
	err   error
}

func (m *mockDiscoverer) Discover(ctx context.Context, engine domain.EngineName, texts []string, maxCodes, sampleSize int) ([]domain.CodeDefinition, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.codes, nil
}

func fixedConfig(mode domain.ClassificationMode) domain.ColumnConfig {
	return domain.ColumnConfig{
		Mode: domain.ModeFixed,
		Codes: []domain.CodeDefinition{
			{Code: "Positive"},
			{Code: "Negative"},
		},
		MappingDict:        map[string]string{"great": "Positive"},
		DefaultCode:        "Other",
		ClassificationMode: mode,
	}
}

func TestPipeline_FixedThenDefault(t *testing.T) {
	pipeline := NewPipeline(nil, nil, nil)

	texts := []string{"great service", "terrible", "ok I guess"}
	rowIDs := []string{"1", "2", "3"}

	outcome, err := pipeline.ClassifyColumn(context.Background(), rowIDs, texts, fixedConfig(domain.FixedThenDefault), nil)
	require.NoError(t, err)
	require.Len(t, outcome.Rows, 3)

	assert.Equal(t, "Positive", outcome.Rows[0].AssignedCode)
	assert.Equal(t, domain.MethodExactMapping, outcome.Rows[0].Method)
	assert.Equal(t, "Other", outcome.Rows[1].AssignedCode)
	assert.Equal(t, domain.MethodDefaultFallback, outcome.Rows[1].Method)
	assert.Equal(t, "Other", outcome.Rows[2].AssignedCode)
	assert.Equal(t, domain.MethodDefaultFallback, outcome.Rows[2].Method)

	assert.Equal(t, map[string]int{"Positive": 1, "Other": 2}, outcome.Statistics)
}

func TestPipeline_FixedThenAI(t *testing.T) {
	llm := &mockCompleter{
		respond: func(call int, userPrompt string) (string, error) {
			return `{"results":[{"index":1,"code":"Negative","confidence":0.9},{"index":2,"code":"Other","confidence":0.6}]}`, nil
		},
	}
	classifier := NewClassifier(llm, ClassifierConfig{}, nil)
	pipeline := NewPipeline(nil, classifier, nil)

	cfg := fixedConfig(domain.FixedThenAI)
	// "Other" must be snappable for the AI answer, include it in the set
	cfg.Codes = append(cfg.Codes, domain.CodeDefinition{Code: "Other"})

	texts := []string{"great service", "terrible", "ok I guess"}
	outcome, err := pipeline.ClassifyColumn(context.Background(), []string{"1", "2", "3"}, texts, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.MethodExactMapping, outcome.Rows[0].Method)
	assert.Equal(t, domain.MethodAIBatchClassification, outcome.Rows[1].Method)
	assert.Equal(t, domain.MethodAIBatchClassification, outcome.Rows[2].Method)
	assert.Equal(t, map[string]int{"Positive": 1, "Negative": 1, "Other": 1}, outcome.Statistics)

	require.NotNil(t, outcome.Rows[1].Confidence)
	assert.InDelta(t, 0.9, *outcome.Rows[1].Confidence, 1e-9)
	assert.Nil(t, outcome.Rows[0].Confidence, "confidence only set for AI methods")
}

func TestPipeline_ExactMappingWinsOverFixedCodeMatch(t *testing.T) {
	cfg := domain.ColumnConfig{
		Mode: domain.ModeFixed,
		Codes: []domain.CodeDefinition{
			{Code: "Quality", Keywords: []string{"excellent"}},
		},
		MappingDict:        map[string]string{"excellent": "Service"},
		DefaultCode:        "Other",
		ClassificationMode: domain.FixedThenDefault,
	}

	pipeline := NewPipeline(nil, nil, nil)
	outcome, err := pipeline.ClassifyColumn(context.Background(), []string{"1"}, []string{"excellent"}, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, "Service", outcome.Rows[0].AssignedCode)
	assert.Equal(t, domain.MethodExactMapping, outcome.Rows[0].Method)
}

func TestPipeline_OpenCodingDiscoversWorkingSet(t *testing.T) {
	discoverer := &mockDiscoverer{codes: []domain.CodeDefinition{
		{Code: "Pricing", Keywords: []string{"expensive", "cheap"}},
		{Code: "Support", Keywords: []string{"helpdesk"}},
	}}
	pipeline := NewPipeline(discoverer, nil, nil)

	cfg := domain.ColumnConfig{
		Mode:               domain.ModeOpen,
		Engine:             domain.EngineLLM,
		MaxCodes:           10,
		SampleSize:         50,
		DefaultCode:        "Other",
		ClassificationMode: domain.OpenThenDefault,
	}

	texts := []string{"too expensive for me", "helpdesk never answered", "fine"}
	outcome, err := pipeline.ClassifyColumn(context.Background(), []string{"1", "2", "3"}, texts, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, "Pricing", outcome.Rows[0].AssignedCode)
	assert.Equal(t, domain.MethodKeywordMatch, outcome.Rows[0].Method)
	assert.Equal(t, "Support", outcome.Rows[1].AssignedCode)
	assert.Equal(t, "Other", outcome.Rows[2].AssignedCode)

	// Per-code counts are folded back into the discovered definitions
	assert.Equal(t, 1, outcome.Codes[0].Count)
	assert.Equal(t, 1, outcome.Codes[1].Count)
}

func TestPipeline_DiscoveryFailureAbortsColumn(t *testing.T) {
	discoverer := &mockDiscoverer{err: fmt.Errorf("model unavailable")}
	pipeline := NewPipeline(discoverer, nil, nil)

	cfg := domain.ColumnConfig{
		Mode:               domain.ModeOpen,
		Engine:             domain.EngineLLM,
		DefaultCode:        "Other",
		ClassificationMode: domain.OpenThenDefault,
	}

	_, err := pipeline.ClassifyColumn(context.Background(), []string{"1"}, []string{"something"}, cfg, nil)
	assert.Error(t, err)
}

func TestPipeline_EmptyDiscoveryIsAnError(t *testing.T) {
	pipeline := NewPipeline(&mockDiscoverer{}, nil, nil)

	cfg := domain.ColumnConfig{
		Mode:               domain.ModeOpen,
		Engine:             domain.EngineClustering,
		DefaultCode:        "Other",
		ClassificationMode: domain.OpenThenDefault,
	}

	_, err := pipeline.ClassifyColumn(context.Background(), []string{"1"}, []string{"something"}, cfg, nil)
	assert.Error(t, err)
}

func TestPipeline_EveryRowResolvedAndCountsSum(t *testing.T) {
	pipeline := NewPipeline(nil, nil, nil)

	texts := []string{"great", "", "  ", "greatest service ever", "meh", "bad"}
	rowIDs := make([]string, len(texts))
	for i := range rowIDs {
		rowIDs[i] = fmt.Sprint(i + 1)
	}

	outcome, err := pipeline.ClassifyColumn(context.Background(), rowIDs, texts, fixedConfig(domain.FixedThenDefault), nil)
	require.NoError(t, err)

	total := 0
	for _, n := range outcome.Statistics {
		total += n
	}
	assert.Equal(t, len(texts), total)

	for _, row := range outcome.Rows {
		assert.NotEmpty(t, row.AssignedCode)
		assert.NotEmpty(t, row.Method)
	}

	// Blank cells resolve to the default code
	assert.Equal(t, "Other", outcome.Rows[1].AssignedCode)
	assert.Equal(t, domain.MethodDefaultFallback, outcome.Rows[1].Method)
}

func TestPipeline_ProgressReachesTotal(t *testing.T) {
	pipeline := NewPipeline(nil, nil, nil)

	var last int
	texts := []string{"great", "bad", "fine", "meh"}
	_, err := pipeline.ClassifyColumn(context.Background(), []string{"1", "2", "3", "4"}, texts,
		fixedConfig(domain.FixedThenDefault), func(done int) { last = done })
	require.NoError(t, err)
	assert.Equal(t, len(texts), last)
}

func TestClassifier_BatchRetriesOnceThenDowngrades(t *testing.T) {
	llm := &mockCompleter{
		respond: func(call int, userPrompt string) (string, error) {
			return "", fmt.Errorf("rate limited")
		},
	}
	classifier := NewClassifier(llm, ClassifierConfig{BatchSize: 10, MaxConcurrent: 1}, nil)

	codes := []domain.CodeDefinition{{Code: "A"}, {Code: "B"}}
	assignments, warnings, err := classifier.ClassifyBatch(context.Background(), []string{"x", "y"}, codes, "Other")
	require.NoError(t, err)

	assert.Equal(t, 2, llm.calls, "one attempt plus one retry")
	require.Len(t, warnings, 1)
	for _, a := range assignments {
		assert.Equal(t, "Other", a.Code)
		assert.Equal(t, domain.MethodDefaultFallback, a.Method)
	}
}

func TestClassifier_SplitsIntoBatches(t *testing.T) {
	llm := &mockCompleter{
		respond: func(call int, userPrompt string) (string, error) {
			// Echo back every item in the batch with code A
			req, err := decodeBatchItems(userPrompt)
			if err != nil {
				return "", err
			}
			results := make([]map[string]any, len(req))
			for i, it := range req {
				results[i] = map[string]any{"index": it.Index, "code": "A", "confidence": 0.8}
			}
			out, _ := json.Marshal(map[string]any{"results": results})
			return string(out), nil
		},
	}
	classifier := NewClassifier(llm, ClassifierConfig{BatchSize: 2, MaxConcurrent: 2}, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	codes := []domain.CodeDefinition{{Code: "A"}}
	assignments, warnings, err := classifier.ClassifyBatch(context.Background(), texts, codes, "Other")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 3, llm.calls)
	for _, a := range assignments {
		assert.Equal(t, "A", a.Code)
		assert.Equal(t, domain.MethodAIBatchClassification, a.Method)
	}
}

// decodeBatchItems pulls the {index, text} array back out of a batch prompt
func decodeBatchItems(prompt string) ([]batchItem, error) {
	start := strings.Index(prompt, "[{")
	if start < 0 {
		return nil, fmt.Errorf("no item array found in prompt")
	}
	end := strings.Index(prompt[start:], "}]")
	if end < 0 {
		return nil, fmt.Errorf("no item array found in prompt")
	}
	var items []batchItem
	if err := json.Unmarshal([]byte(prompt[start:start+end+2]), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func TestSnapCode(t *testing.T) {
	codes := []domain.CodeDefinition{{Code: "Customer Service"}, {Code: "Pricing"}}

	assert.Equal(t, "Pricing", snapCode("pricing", codes))
	assert.Equal(t, "Customer Service", snapCode("Service", codes), "substring snaps onto the allowed label")
	assert.Equal(t, "Customer Service", snapCode("invented category", codes), "unknown answers snap to the first allowed code")
}
