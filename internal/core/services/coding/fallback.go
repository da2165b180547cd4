package coding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// ChatCompleter is the external language-model capability the fallback
// classifier dispatches to. Implemented by the OpenAI client.
type ChatCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClassifierConfig bounds the batch dispatch
type ClassifierConfig struct {
	BatchSize     int
	MaxConcurrent int
}

// Assignment is one row's AI resolution, aligned by position with the
// input text slice
type Assignment struct {
	Code       string
	Method     domain.Method
	Confidence *float64
}

// Classifier resolves rows the matching stage could not, by sending
// fixed-size batches to the language model concurrently. A batch that
// fails after one retry downgrades its rows to the default code and
// records a warning instead of failing the column.
type Classifier struct {
	llm    ChatCompleter
	config ClassifierConfig
	logger *slog.Logger
}

// NewClassifier creates an AI fallback classifier
func NewClassifier(llm ChatCompleter, config ClassifierConfig, logger *slog.Logger) *Classifier {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: llm, config: config, logger: logger}
}

type batchItem struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type batchResult struct {
	Results []struct {
		Index      int      `json:"index"`
		Code       string   `json:"code"`
		Confidence *float64 `json:"confidence"`
	} `json:"results"`
}

// ClassifyBatch classifies texts against the allowed code set. The
// returned slice is aligned with texts; every position is filled.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string, codes []domain.CodeDefinition, defaultCode string) ([]Assignment, []string, error) {
	assignments := make([]Assignment, len(texts))
	if len(texts) == 0 {
		return assignments, nil, nil
	}

	type batchSpan struct {
		start, end int
	}
	var spans []batchSpan
	for start := 0; start < len(texts); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		spans = append(spans, batchSpan{start, end})
	}

	warnings := make([][]string, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxConcurrent)

	for i, span := range spans {
		g.Go(func() error {
			batch := texts[span.start:span.end]

			result, err := c.dispatchBatch(gctx, batch, codes)
			if err != nil {
				c.logger.Warn("classification batch failed, retrying once",
					slog.Int("batch_start", span.start),
					slog.Int("batch_size", len(batch)),
					"error", err)
				result, err = c.dispatchBatch(gctx, batch, codes)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				for j := range batch {
					assignments[span.start+j] = Assignment{
						Code:   defaultCode,
						Method: domain.MethodDefaultFallback,
					}
				}
				warnings[i] = append(warnings[i],
					fmt.Sprintf("AI classification failed for %d rows after retry, assigned default code: %v", len(batch), err))
				return nil
			}

			for j := range batch {
				assignments[span.start+j] = c.resolveItem(result, j, codes, defaultCode)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var flat []string
	for _, w := range warnings {
		flat = append(flat, w...)
	}
	return assignments, flat, nil
}

// ClassifyOne classifies a single text, used for ad-hoc overview items
// outside the batch path
func (c *Classifier) ClassifyOne(ctx context.Context, text string, codes []domain.CodeDefinition) (Assignment, error) {
	result, err := c.dispatchBatch(ctx, []string{text}, codes)
	if err != nil {
		return Assignment{}, err
	}
	a := c.resolveItem(result, 0, codes, "")
	if a.Code == "" {
		return Assignment{}, fmt.Errorf("model returned no classification for text")
	}
	a.Method = domain.MethodAIClassification
	return a, nil
}

func (c *Classifier) dispatchBatch(ctx context.Context, batch []string, codes []domain.CodeDefinition) (*batchResult, error) {
	items := make([]batchItem, len(batch))
	for i, text := range batch {
		items[i] = batchItem{Index: i + 1, Text: text}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	raw, err := c.llm.CompleteJSON(ctx, batchSystemPrompt, buildBatchPrompt(codes, payload))
	if err != nil {
		return nil, err
	}

	var result batchResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	return &result, nil
}

// resolveItem looks up position j of the batch in the model response and
// snaps the returned code onto the allowed set
func (c *Classifier) resolveItem(result *batchResult, j int, codes []domain.CodeDefinition, defaultCode string) Assignment {
	for _, item := range result.Results {
		if item.Index != j+1 {
			continue
		}
		return Assignment{
			Code:       snapCode(item.Code, codes),
			Method:     domain.MethodAIBatchClassification,
			Confidence: item.Confidence,
		}
	}
	return Assignment{Code: defaultCode, Method: domain.MethodDefaultFallback}
}

// snapCode maps a free-form model answer onto the allowed code set.
// Exact match first, then substring in either direction, then the first
// allowed code so the result always stays inside the working set.
func snapCode(answer string, codes []domain.CodeDefinition) string {
	norm := normalizeText(answer)
	for _, def := range codes {
		if normalizeText(def.Code) == norm {
			return def.Code
		}
	}
	for _, def := range codes {
		label := normalizeText(def.Code)
		if label == "" || norm == "" {
			continue
		}
		if strings.Contains(norm, label) || strings.Contains(label, norm) {
			return def.Code
		}
	}
	if len(codes) > 0 {
		return codes[0].Code
	}
	return answer
}

const batchSystemPrompt = `You are a survey coding assistant. You assign each free-text survey answer to exactly one code from the allowed list. Respond with JSON only, no prose.`

func buildBatchPrompt(codes []domain.CodeDefinition, items []byte) string {
	var b strings.Builder
	b.WriteString("Allowed codes:\n")
	for _, def := range codes {
		b.WriteString("- ")
		b.WriteString(def.Code)
		if def.Description != "" {
			b.WriteString(": ")
			b.WriteString(def.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nClassify each answer. Answers as JSON array of {index, text}:\n")
	b.Write(items)
	b.WriteString("\n\nRespond with exactly this JSON shape:\n")
	b.WriteString(`{"results":[{"index":1,"code":"<one allowed code>","confidence":0.0}]}`)
	return b.String()
}

// extractJSON tolerates models that wrap the JSON body in a markdown fence
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}
	return raw
}
