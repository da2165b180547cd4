package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// LLMEngine induces a code set from a bounded sample of the column by
// asking a language model, in two passes: a broad induction pass over the
// sample, then a refinement pass that merges overlapping categories and
// enforces the max_codes bound.
type LLMEngine struct {
	model  ChatModel
	logger *slog.Logger
}

// NewLLMEngine creates the sampling+AI induction engine
func NewLLMEngine(model ChatModel, logger *slog.Logger) *LLMEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMEngine{model: model, logger: logger}
}

func (e *LLMEngine) Name() domain.EngineName {
	return domain.EngineLLM
}

// Discover samples the corpus and induces up to maxCodes categories.
// Output order is the model's; no ordering guarantee beyond that.
func (e *LLMEngine) Discover(ctx context.Context, texts []string, maxCodes, sampleSize int) ([]domain.CodeDefinition, error) {
	if len(texts) == 0 {
		return nil, errors.DiscoveryFailed(fmt.Errorf("no non-empty texts to discover codes from"), string(e.Name()))
	}

	sample := sampleTexts(texts, sampleSize)

	candidates, err := e.induce(ctx, sample, maxCodes)
	if err != nil {
		return nil, errors.DiscoveryFailed(err, string(e.Name()))
	}

	refined, err := e.refine(ctx, candidates, maxCodes)
	if err != nil {
		// The induction pass already produced a usable set, refinement
		// failure only loses merging
		e.logger.Warn("code refinement failed, using induced set", "error", err)
		refined = candidates
	}

	if len(refined) == 0 {
		return nil, errors.DiscoveryFailed(fmt.Errorf("model returned an empty code set"), string(e.Name()))
	}
	if len(refined) > maxCodes {
		refined = refined[:maxCodes]
	}

	e.logger.Info("codes discovered",
		slog.String("engine", string(e.Name())),
		slog.Int("sample", len(sample)),
		slog.Int("codes", len(refined)))

	return refined, nil
}

// Overview discovers codes and then classifies the full corpus against
// them by keyword scoring. Texts no code accounts for are returned
// unclassified for the caller to resolve.
func (e *LLMEngine) Overview(ctx context.Context, texts []string, maxCodes, sampleSize int) (*OverviewResult, error) {
	codes, err := e.Discover(ctx, texts, maxCodes, sampleSize)
	if err != nil {
		return nil, err
	}

	result := &OverviewResult{
		Codes:      codes,
		Classified: make(domain.ClassifiedData),
	}

	for _, text := range texts {
		if code, ok := bestKeywordMatch(text, codes); ok {
			result.Classified[code] = append(result.Classified[code], text)
		} else {
			result.Unclassified = append(result.Unclassified, text)
		}
	}
	return result, nil
}

type inducedCodes struct {
	Codes []struct {
		Code        string   `json:"code"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
	} `json:"codes"`
}

func (e *LLMEngine) induce(ctx context.Context, sample []string, maxCodes int) ([]domain.CodeDefinition, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample: %w", err)
	}

	prompt := fmt.Sprintf(
		"Read these survey answers and induce at most %d category codes that cover them. "+
			"Give each code a short label, a one-sentence description and 3-8 lowercase keywords "+
			"likely to appear in answers belonging to it.\n\nAnswers:\n%s\n\n"+
			"Respond with exactly this JSON shape:\n"+
			`{"codes":[{"code":"<label>","description":"<sentence>","keywords":["<kw>"]}]}`,
		maxCodes, payload)

	return e.requestCodes(ctx, prompt)
}

func (e *LLMEngine) refine(ctx context.Context, candidates []domain.CodeDefinition, maxCodes int) ([]domain.CodeDefinition, error) {
	payload, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}

	prompt := fmt.Sprintf(
		"These category codes were induced from survey answers. Merge overlapping categories, "+
			"drop near-duplicates and keep at most %d distinct codes. Keep labels, descriptions "+
			"and keywords in the same shape.\n\nCandidates:\n%s\n\n"+
			"Respond with exactly this JSON shape:\n"+
			`{"codes":[{"code":"<label>","description":"<sentence>","keywords":["<kw>"]}]}`,
		maxCodes, payload)

	return e.requestCodes(ctx, prompt)
}

const discoverySystemPrompt = `You are a survey coding assistant. You design concise category code sets for free-text survey answers. Respond with JSON only, no prose.`

func (e *LLMEngine) requestCodes(ctx context.Context, prompt string) ([]domain.CodeDefinition, error) {
	raw, err := e.model.CompleteJSON(ctx, discoverySystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed inducedCodes
	if err := json.Unmarshal([]byte(stripFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}

	seen := make(map[string]bool, len(parsed.Codes))
	defs := make([]domain.CodeDefinition, 0, len(parsed.Codes))
	for _, c := range parsed.Codes {
		label := strings.TrimSpace(c.Code)
		if label == "" || seen[strings.ToLower(label)] {
			continue
		}
		seen[strings.ToLower(label)] = true
		defs = append(defs, domain.CodeDefinition{
			Code:        label,
			Description: c.Description,
			Keywords:    c.Keywords,
		})
	}
	return defs, nil
}

// sampleTexts draws an evenly spaced sample so repeated runs over the
// same corpus see the same texts. sampleSize <= 0 means the full corpus.
func sampleTexts(texts []string, sampleSize int) []string {
	if sampleSize <= 0 || len(texts) <= sampleSize {
		return texts
	}
	sample := make([]string, 0, sampleSize)
	step := float64(len(texts)) / float64(sampleSize)
	for i := 0; i < sampleSize; i++ {
		sample = append(sample, texts[int(float64(i)*step)])
	}
	return sample
}

// bestKeywordMatch scores a text against every code by keyword hits and
// returns the highest-scoring code. Label presence counts as a hit.
func bestKeywordMatch(text string, codes []domain.CodeDefinition) (string, bool) {
	lower := strings.ToLower(text)

	best := ""
	bestScore := 0
	for _, def := range codes {
		score := 0
		if label := strings.ToLower(def.Code); label != "" && strings.Contains(lower, label) {
			score++
		}
		for _, kw := range def.Keywords {
			if k := strings.ToLower(strings.TrimSpace(kw)); k != "" && strings.Contains(lower, k) {
				score++
			}
		}
		if score > bestScore {
			best = def.Code
			bestScore = score
		}
	}
	return best, bestScore > 0
}

// stripFence tolerates models that wrap the JSON body in a markdown fence
func stripFence(raw string) string {
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
