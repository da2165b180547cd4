package domain

// CodingMode distinguishes fixed coding (closed code set supplied up
// front) from open coding (code set induced from the data at run time)
type CodingMode string

const (
	ModeFixed CodingMode = "fixed"
	ModeOpen  CodingMode = "open"
)

// EngineName selects the open-coding discovery strategy
type EngineName string

const (
	EngineLLM        EngineName = "llm"
	EngineClustering EngineName = "clustering"
)

// SampleSizeFullCorpus is the sentinel meaning "use every row"; the
// clustering engine always runs over the full corpus
const SampleSizeFullCorpus = -1

// ClassificationMode is the ordered fallback strategy for rows the
// deterministic matching stage could not resolve. The prefix is bound to
// the coding mode; the suffix picks the terminal stage.
type ClassificationMode string

const (
	FixedThenDefault ClassificationMode = "fixed_then_default"
	FixedThenAI      ClassificationMode = "fixed_then_ai"
	OpenThenDefault  ClassificationMode = "open_then_default"
	OpenThenAI       ClassificationMode = "open_then_ai"
)

// CodingMode returns the coding mode this classification mode pairs with
func (cm ClassificationMode) CodingMode() CodingMode {
	switch cm {
	case FixedThenDefault, FixedThenAI:
		return ModeFixed
	case OpenThenDefault, OpenThenAI:
		return ModeOpen
	}
	return ""
}

// UsesAIFallback reports whether unmatched rows go to the AI classifier
// instead of the default code
func (cm ClassificationMode) UsesAIFallback() bool {
	return cm == FixedThenAI || cm == OpenThenAI
}

// OpenCoding reports whether the working code set must be discovered
// before classification
func (cm ClassificationMode) OpenCoding() bool {
	return cm.CodingMode() == ModeOpen
}

// DefaultClassificationMode returns the mode-appropriate strategy used
// when a config omits classification_mode
func DefaultClassificationMode(mode CodingMode) ClassificationMode {
	if mode == ModeOpen {
		return OpenThenDefault
	}
	return FixedThenDefault
}

// MaxCodes bounds
const (
	MinMaxCodes = 3
	MaxMaxCodes = 50
)

// Sample size bounds for the llm discovery engine
const (
	MinSampleSize = 10
	MaxSampleSize = 200
)

// ColumnConfig is the validated per-column classification configuration
type ColumnConfig struct {
	Mode               CodingMode         `json:"mode"`
	Engine             EngineName         `json:"engine,omitempty"`
	MaxCodes           int                `json:"max_codes,omitempty"`
	SampleSize         int                `json:"sample_size,omitempty"`
	Codes              []CodeDefinition   `json:"codes,omitempty"`
	LibraryID          uint               `json:"library_id,omitempty"`
	MappingDict        map[string]string  `json:"mapping_dict,omitempty"`
	DefaultCode        string             `json:"default_code"`
	ClassificationMode ClassificationMode `json:"classification_mode,omitempty"`

	// Set by the orchestrator when open coding auto-creates a library
	// from the discovered code set
	GeneratedLibraryID   uint   `json:"generated_library_id,omitempty"`
	GeneratedLibraryName string `json:"generated_library_name,omitempty"`
}

// ColumnJob pairs a column name with its validated config. Tasks carry an
// ordered list of jobs; the worker processes them strictly in order.
type ColumnJob struct {
	Name   string       `json:"name"`
	Config ColumnConfig `json:"config"`
}
