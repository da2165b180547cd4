package coding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// RawColumnConfig is the wire shape of a per-column configuration before
// validation. MappingDict stays raw so a malformed object can be reported
// as an invalid_mapping error for that column instead of failing the
// whole request at decode time.
type RawColumnConfig struct {
	Mode               string                  `json:"mode"`
	Engine             string                  `json:"engine,omitempty"`
	MaxCodes           int                     `json:"max_codes,omitempty"`
	SampleSize         int                     `json:"sample_size,omitempty"`
	Codes              []domain.CodeDefinition `json:"codes,omitempty"`
	LibraryID          uint                    `json:"library_id,omitempty"`
	MappingDict        json.RawMessage         `json:"mapping_dict,omitempty"`
	DefaultCode        string                  `json:"default_code"`
	ClassificationMode string                  `json:"classification_mode,omitempty"`
}

// LibraryStore resolves named code libraries referenced by fixed-mode
// configs. Implemented by the code library repository.
type LibraryStore interface {
	GetLibrary(ctx context.Context, id uint) (*domain.CodeLibrary, error)
}

// ConfigError records one column's validation failure. A submission is
// accepted only when every selected column resolves cleanly.
type ConfigError struct {
	Column string
	Err    *errors.AppError
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("column %s: %s", e.Column, e.Err.Message)
}

// Resolver validates and normalizes raw column configurations
type Resolver struct {
	libraries       LibraryStore
	defaultMaxCodes int
}

// NewResolver creates a config resolver backed by the given library
// store. defaultMaxCodes applies when a column omits max_codes.
func NewResolver(libraries LibraryStore, defaultMaxCodes int) *Resolver {
	if defaultMaxCodes <= 0 {
		defaultMaxCodes = 10
	}
	return &Resolver{libraries: libraries, defaultMaxCodes: defaultMaxCodes}
}

// ResolveConfigs validates every column in the submission order given by
// columns. It collects one ConfigError per failing column rather than
// stopping at the first, so the caller can surface all problems at once.
func (r *Resolver) ResolveConfigs(ctx context.Context, columns []string, raw map[string]RawColumnConfig) ([]domain.ColumnJob, []ConfigError) {
	jobs := make([]domain.ColumnJob, 0, len(columns))
	var errs []ConfigError

	for _, column := range columns {
		rc, ok := raw[column]
		if !ok {
			errs = append(errs, ConfigError{
				Column: column,
				Err:    errors.InvalidConfig(column, "no configuration supplied for column"),
			})
			continue
		}

		cfg, err := r.resolveOne(ctx, column, rc)
		if err != nil {
			errs = append(errs, ConfigError{Column: column, Err: err})
			continue
		}

		jobs = append(jobs, domain.ColumnJob{Name: column, Config: *cfg})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return jobs, nil
}

func (r *Resolver) resolveOne(ctx context.Context, column string, rc RawColumnConfig) (*domain.ColumnConfig, *errors.AppError) {
	if rc.DefaultCode == "" {
		return nil, errors.InvalidConfig(column, "default_code must not be empty")
	}

	mode := domain.CodingMode(rc.Mode)
	if mode != domain.ModeFixed && mode != domain.ModeOpen {
		return nil, errors.InvalidConfig(column, fmt.Sprintf("mode must be %q or %q", domain.ModeFixed, domain.ModeOpen))
	}

	cm := domain.ClassificationMode(rc.ClassificationMode)
	if rc.ClassificationMode == "" {
		cm = domain.DefaultClassificationMode(mode)
	}
	if cm.CodingMode() == "" {
		return nil, errors.InvalidConfig(column, fmt.Sprintf("unknown classification_mode %q", rc.ClassificationMode))
	}
	if cm.CodingMode() != mode {
		return nil, errors.InvalidConfig(column,
			fmt.Sprintf("classification_mode %q is not valid for mode %q", cm, mode))
	}

	cfg := &domain.ColumnConfig{
		Mode:               mode,
		DefaultCode:        rc.DefaultCode,
		ClassificationMode: cm,
		LibraryID:          rc.LibraryID,
	}

	if mode == domain.ModeFixed {
		codes := rc.Codes
		if len(codes) == 0 && rc.LibraryID != 0 {
			lib, err := r.libraries.GetLibrary(ctx, rc.LibraryID)
			if err != nil {
				return nil, errors.MissingLibrary(column, rc.LibraryID)
			}
			codes = lib.Definitions()
		}
		if len(codes) == 0 {
			return nil, errors.InvalidConfig(column, "fixed mode requires codes or a library_id")
		}
		cfg.Codes = codes
	} else {
		engine := domain.EngineName(rc.Engine)
		if engine == "" {
			engine = domain.EngineLLM
		}
		if engine != domain.EngineLLM && engine != domain.EngineClustering {
			return nil, errors.InvalidConfig(column, fmt.Sprintf("unknown engine %q", rc.Engine))
		}
		cfg.Engine = engine
		cfg.MaxCodes = r.clampMaxCodes(rc.MaxCodes)
		cfg.SampleSize = resolveSampleSize(engine, rc.SampleSize)
	}

	if len(rc.MappingDict) > 0 {
		var mapping map[string]string
		if err := json.Unmarshal(rc.MappingDict, &mapping); err != nil {
			return nil, errors.InvalidMapping(column, err)
		}
		cfg.MappingDict = mapping
	}

	return cfg, nil
}

func (r *Resolver) clampMaxCodes(n int) int {
	if n == 0 {
		n = r.defaultMaxCodes
	}
	if n < domain.MinMaxCodes {
		return domain.MinMaxCodes
	}
	if n > domain.MaxMaxCodes {
		return domain.MaxMaxCodes
	}
	return n
}

// resolveSampleSize normalizes the sample size per engine: clustering
// always runs over the full corpus, the llm engine clamps to its bounds
// with a default of 50
func resolveSampleSize(engine domain.EngineName, n int) int {
	if engine == domain.EngineClustering {
		return domain.SampleSizeFullCorpus
	}
	if n == 0 {
		return 50
	}
	if n == domain.SampleSizeFullCorpus {
		return domain.SampleSizeFullCorpus
	}
	if n < domain.MinSampleSize {
		return domain.MinSampleSize
	}
	if n > domain.MaxSampleSize {
		return domain.MaxSampleSize
	}
	return n
}
