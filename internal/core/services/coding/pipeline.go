package coding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// CodeDiscoverer produces the working code set for open-coding columns.
// Implemented by the discovery engine registry.
type CodeDiscoverer interface {
	Discover(ctx context.Context, engine domain.EngineName, texts []string, maxCodes, sampleSize int) ([]domain.CodeDefinition, error)
}

// ColumnOutcome is everything one finished column job produced
type ColumnOutcome struct {
	Codes      []domain.CodeDefinition
	Rows       []domain.ClassificationRow
	Statistics map[string]int
	Warnings   []string
}

// Pipeline composes discovery, deterministic matching and the AI
// fallback into a total classification function: every row leaves with
// exactly one (code, method) pair.
type Pipeline struct {
	discovery  CodeDiscoverer
	classifier *Classifier
	logger     *slog.Logger
}

// NewPipeline creates a resolution pipeline. classifier may be nil when
// no language model is configured; *_then_ai columns then fail at run
// time rather than silently downgrading.
func NewPipeline(discovery CodeDiscoverer, classifier *Classifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{discovery: discovery, classifier: classifier, logger: logger}
}

// ClassifyColumn resolves every row of one column. rowIDs is aligned
// with texts. onProgress, if non-nil, is called with the running count
// of resolved rows.
func (p *Pipeline) ClassifyColumn(ctx context.Context, rowIDs, texts []string, cfg domain.ColumnConfig, onProgress func(done int)) (*ColumnOutcome, error) {
	if len(rowIDs) != len(texts) {
		return nil, fmt.Errorf("row id count %d does not match text count %d", len(rowIDs), len(texts))
	}

	outcome := &ColumnOutcome{
		Rows:       make([]domain.ClassificationRow, len(texts)),
		Statistics: make(map[string]int),
	}

	codes, err := p.workingCodes(ctx, texts, cfg)
	if err != nil {
		return nil, err
	}
	outcome.Codes = codes

	matcher := NewMatcher(cfg.Mode, codes, cfg.MappingDict)

	// Deterministic pass. Blank cells go straight to the default code;
	// unmatched rows are collected for the fallback stage.
	var pendingIdx []int
	resolved := 0
	for i, text := range texts {
		row := domain.ClassificationRow{RowID: rowIDs[i], OriginalText: text}

		switch {
		case isBlank(text):
			row.AssignedCode = cfg.DefaultCode
			row.Method = domain.MethodDefaultFallback
		default:
			if code, method, ok := matcher.Match(text); ok {
				row.AssignedCode = code
				row.Method = method
			} else {
				pendingIdx = append(pendingIdx, i)
			}
		}

		outcome.Rows[i] = row
		if row.Method != "" {
			resolved++
			p.reportProgress(onProgress, resolved)
		}
	}

	if len(pendingIdx) > 0 {
		if err := p.resolvePending(ctx, pendingIdx, outcome, codes, cfg, func() {
			resolved++
			p.reportProgress(onProgress, resolved)
		}); err != nil {
			return nil, err
		}
	}

	for i := range outcome.Rows {
		outcome.Statistics[outcome.Rows[i].AssignedCode]++
	}
	for i := range outcome.Codes {
		outcome.Codes[i].Count = outcome.Statistics[outcome.Codes[i].Code]
	}

	p.logger.Info("column classified",
		slog.Int("rows", len(texts)),
		slog.Int("matched", len(texts)-len(pendingIdx)),
		slog.Int("fallback", len(pendingIdx)),
		slog.String("mode", string(cfg.Mode)))

	return outcome, nil
}

// workingCodes returns the code set classification runs against: the
// configured codes for fixed mode, a freshly discovered set for open mode
func (p *Pipeline) workingCodes(ctx context.Context, texts []string, cfg domain.ColumnConfig) ([]domain.CodeDefinition, error) {
	if !cfg.ClassificationMode.OpenCoding() {
		return cfg.Codes, nil
	}

	if p.discovery == nil {
		return nil, errors.DiscoveryFailed(fmt.Errorf("no discovery engine configured"), string(cfg.Engine))
	}

	corpus := make([]string, 0, len(texts))
	for _, t := range texts {
		if !isBlank(t) {
			corpus = append(corpus, t)
		}
	}

	codes, err := p.discovery.Discover(ctx, cfg.Engine, corpus, cfg.MaxCodes, cfg.SampleSize)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, errors.DiscoveryFailed(fmt.Errorf("engine returned an empty code set"), string(cfg.Engine))
	}
	return codes, nil
}

// resolvePending runs the terminal stage for rows the matcher left
// unresolved: AI classification for *_then_ai, the default code otherwise
func (p *Pipeline) resolvePending(ctx context.Context, pendingIdx []int, outcome *ColumnOutcome, codes []domain.CodeDefinition, cfg domain.ColumnConfig, onResolved func()) error {
	if !cfg.ClassificationMode.UsesAIFallback() {
		for _, i := range pendingIdx {
			outcome.Rows[i].AssignedCode = cfg.DefaultCode
			outcome.Rows[i].Method = domain.MethodDefaultFallback
			onResolved()
		}
		return nil
	}

	if p.classifier == nil {
		return errors.LLMRequestFailed(fmt.Errorf("classification mode %s requires a language model but none is configured", cfg.ClassificationMode))
	}

	pendingTexts := make([]string, len(pendingIdx))
	for j, i := range pendingIdx {
		pendingTexts[j] = outcome.Rows[i].OriginalText
	}

	assignments, warnings, err := p.classifier.ClassifyBatch(ctx, pendingTexts, codes, cfg.DefaultCode)
	if err != nil {
		return err
	}
	outcome.Warnings = append(outcome.Warnings, warnings...)

	for j, i := range pendingIdx {
		outcome.Rows[i].AssignedCode = assignments[j].Code
		outcome.Rows[i].Method = assignments[j].Method
		if assignments[j].Method.IsAI() {
			outcome.Rows[i].Confidence = assignments[j].Confidence
		}
		onResolved()
	}
	return nil
}

func (p *Pipeline) reportProgress(onProgress func(int), done int) {
	if onProgress != nil {
		onProgress(done)
	}
}
