package workshop

import (
	"context"
	"log/slog"
	"time"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/coding"
	"github.com/surveylab/coding-service/internal/core/services/discovery"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// otherCode is the bucket for texts no discovered code accounts for
const otherCode = "Other"

// RunRepository persists cluster test runs. Implemented by the cluster
// test repository.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.ClusterTestRun) error
	GetRun(ctx context.Context, id uint) (*domain.ClusterTestRun, error)
	ListRuns(ctx context.Context) ([]domain.ClusterTestRun, error)
	DeleteRun(ctx context.Context, id uint) error
}

// TableSource reads one column of an uploaded file. Implemented by the
// file store.
type TableSource interface {
	ColumnValues(ctx context.Context, fileID, column string) ([]string, error)
}

// SingleClassifier resolves individual texts against a code set.
// Implemented by the AI fallback classifier's single-item path.
type SingleClassifier interface {
	ClassifyOne(ctx context.Context, text string, codes []domain.CodeDefinition) (coding.Assignment, error)
}

// ClusterTestRequest is one requested discovery comparison run
type ClusterTestRequest struct {
	FileID     string            `json:"file_id"`
	FileName   string            `json:"file_name"`
	ColumnName string            `json:"column_name"`
	Engine     domain.EngineName `json:"engine"`
	SampleSize int               `json:"sample_size"`
	MaxCodes   int               `json:"max_codes"`
}

// RunOutcome reports one run of a batch submission. Err is set when that
// run failed; sibling runs are unaffected.
type RunOutcome struct {
	ColumnName string                 `json:"column_name"`
	Engine     domain.EngineName      `json:"engine"`
	Run        *domain.ClusterTestRun `json:"run,omitempty"`
	Err        error                  `json:"-"`
	Error      string                 `json:"error,omitempty"`
}

// Config bounds workshop runs
type Config struct {
	MinRows         int
	DefaultMaxCodes int
}

// Service runs ad-hoc, task-independent discovery comparisons over
// single columns and keeps their history
type Service struct {
	engines    *discovery.Registry
	runs       RunRepository
	files      TableSource
	cache      ResultCache
	classifier SingleClassifier
	config     Config
	logger     *slog.Logger
}

// NewService creates the cluster test service. classifier may be nil;
// unclassified texts then land in the fallback bucket directly.
func NewService(engines *discovery.Registry, runs RunRepository, files TableSource, cache ResultCache, classifier SingleClassifier, config Config, logger *slog.Logger) *Service {
	if config.MinRows <= 0 {
		config.MinRows = 5
	}
	if config.DefaultMaxCodes <= 0 {
		config.DefaultMaxCodes = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engines:    engines,
		runs:       runs,
		files:      files,
		cache:      cache,
		classifier: classifier,
		config:     config,
		logger:     logger,
	}
}

// Run executes one discovery comparison and persists it as an immutable
// history record. The classified detail payload goes to the result
// cache, keyed by the new run's id.
func (s *Service) Run(ctx context.Context, req ClusterTestRequest) (*domain.ClusterTestRun, error) {
	engine, err := s.engines.Get(req.Engine)
	if err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	// The clustering engine always consumes the full corpus
	sampleSize := req.SampleSize
	if req.Engine == domain.EngineClustering {
		sampleSize = domain.SampleSizeFullCorpus
	}
	maxCodes := req.MaxCodes
	if maxCodes <= 0 {
		maxCodes = s.config.DefaultMaxCodes
	}

	values, err := s.files.ColumnValues(ctx, req.FileID, req.ColumnName)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			texts = append(texts, v)
		}
	}
	if len(texts) < s.config.MinRows {
		return nil, errors.TooFewRecords(len(texts), s.config.MinRows)
	}

	s.logger.Info("cluster test started",
		slog.String("file_id", req.FileID),
		slog.String("column", req.ColumnName),
		slog.String("engine", string(req.Engine)),
		slog.Int("texts", len(texts)))

	overview, err := engine.Overview(ctx, texts, maxCodes, sampleSize)
	if err != nil {
		return nil, err
	}

	classified, codes := s.settleUnclassified(ctx, overview)

	run := &domain.ClusterTestRun{
		FileID:     req.FileID,
		FileName:   req.FileName,
		ColumnName: req.ColumnName,
		Engine:     req.Engine,
		SampleSize: sampleSize,
		MaxCodes:   maxCodes,
		Results:    codes,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, errors.DatabaseError(err)
	}

	if s.cache != nil {
		meta := CacheMeta{
			ColumnName: req.ColumnName,
			FileName:   req.FileName,
			Engine:     req.Engine,
			SampleSize: sampleSize,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.cache.StoreRun(ctx, run.ID, classified, meta); err != nil {
			// The run record stands on its own; only the detail view is lost
			s.logger.Warn("failed to cache classified data", slog.Uint64("run_id", uint64(run.ID)), "error", err)
		}
	}

	s.logger.Info("cluster test completed",
		slog.Uint64("run_id", uint64(run.ID)),
		slog.Int("codes", len(codes)))

	return run, nil
}

// RunAll executes a batch submission strictly in order. Each run's
// outcome is independent; a failed run never blocks its siblings.
func (s *Service) RunAll(ctx context.Context, reqs []ClusterTestRequest) []RunOutcome {
	outcomes := make([]RunOutcome, 0, len(reqs))
	for _, req := range reqs {
		run, err := s.Run(ctx, req)
		outcome := RunOutcome{ColumnName: req.ColumnName, Engine: req.Engine, Run: run, Err: err}
		if err != nil {
			outcome.Error = err.Error()
			s.logger.Warn("cluster test run failed",
				slog.String("column", req.ColumnName),
				slog.String("engine", string(req.Engine)),
				"error", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// settleUnclassified gives every leftover text a terminal bucket: the
// single-item AI path when a classifier is wired, the fallback bucket
// otherwise. Returns the final classified map and the code definitions
// with counts.
func (s *Service) settleUnclassified(ctx context.Context, overview *discovery.OverviewResult) (domain.ClassifiedData, []domain.CodeDefinition) {
	classified := overview.Classified
	if classified == nil {
		classified = make(domain.ClassifiedData)
	}

	for _, text := range overview.Unclassified {
		bucket := otherCode
		if s.classifier != nil {
			if a, err := s.classifier.ClassifyOne(ctx, text, overview.Codes); err == nil {
				bucket = a.Code
			}
		}
		classified[bucket] = append(classified[bucket], text)
	}

	codes := make([]domain.CodeDefinition, len(overview.Codes))
	copy(codes, overview.Codes)
	for i := range codes {
		codes[i].Count = len(classified[codes[i].Code])
	}
	if n := len(classified[otherCode]); n > 0 {
		codes = append(codes, domain.CodeDefinition{
			Code:        otherCode,
			Description: "Answers outside every discovered category",
			Count:       n,
		})
	}
	return classified, codes
}

// GetRun returns one history record
func (s *Service) GetRun(ctx context.Context, id uint) (*domain.ClusterTestRun, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, errors.RecordNotFound("cluster test run")
	}
	return run, nil
}

// History lists all recorded runs, newest first
func (s *Service) History(ctx context.Context) ([]domain.ClusterTestRun, error) {
	runs, err := s.runs.ListRuns(ctx)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return runs, nil
}

// DeleteRun removes a history record and its cached detail payload
func (s *Service) DeleteRun(ctx context.Context, id uint) error {
	if _, err := s.runs.GetRun(ctx, id); err != nil {
		return errors.RecordNotFound("cluster test run")
	}
	if err := s.runs.DeleteRun(ctx, id); err != nil {
		return errors.DatabaseError(err)
	}
	return nil
}

// ClassifiedData returns the cached detail payload for a run. Expired
// and never-cached payloads read identically as a miss.
func (s *Service) ClassifiedData(ctx context.Context, runID uint) (*CachedClassifiedData, error) {
	if s.cache == nil {
		return nil, ErrCacheMiss
	}
	return s.cache.GetRun(ctx, runID)
}

// CachePayload stores an ad-hoc classified-data payload and returns its
// opaque token
func (s *Service) CachePayload(ctx context.Context, data domain.ClassifiedData, meta CacheMeta) (string, error) {
	if s.cache == nil {
		return "", errors.Internal("no result cache configured")
	}
	return s.cache.Put(ctx, data, meta)
}

// CachedPayload retrieves an ad-hoc payload by token
func (s *Service) CachedPayload(ctx context.Context, cacheID string) (*CachedClassifiedData, error) {
	if s.cache == nil {
		return nil, ErrCacheMiss
	}
	return s.cache.Get(ctx, cacheID)
}
