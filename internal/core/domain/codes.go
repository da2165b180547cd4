package domain

// CodeDefinition is a named category a text row can be assigned to.
// Keywords drive deterministic matching; Count is filled in after a run.
type CodeDefinition struct {
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Count       int      `json:"count,omitempty"`
}

// Method identifies which pipeline stage resolved a row
type Method string

const (
	MethodExactMapping          Method = "exact_mapping"
	MethodPartialMapping        Method = "partial_mapping"
	MethodFixedCodeMatch        Method = "fixed_code_match"
	MethodKeywordMatch          Method = "keyword_match"
	MethodAIClassification      Method = "ai_classification"
	MethodAIBatchClassification Method = "ai_batch_classification"
	MethodDefaultFallback       Method = "default_fallback"
)

// IsAI reports whether the method came from the AI fallback classifier.
// Confidence is only ever carried by AI methods.
func (m Method) IsAI() bool {
	return m == MethodAIClassification || m == MethodAIBatchClassification
}

// ValidMethods returns every resolution method the pipeline can produce
func ValidMethods() []Method {
	return []Method{
		MethodExactMapping,
		MethodPartialMapping,
		MethodFixedCodeMatch,
		MethodKeywordMatch,
		MethodAIClassification,
		MethodAIBatchClassification,
		MethodDefaultFallback,
	}
}

// ClassificationRow is the terminal result for a single answer: exactly
// one assigned code and one method per row
type ClassificationRow struct {
	RowID        string   `json:"row_id"`
	OriginalText string   `json:"original_text"`
	AssignedCode string   `json:"assigned_code"`
	Method       Method   `json:"method"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// Statistics maps column name to per-code row counts
type Statistics map[string]map[string]int

// CodeNames extracts the label list from a set of definitions
func CodeNames(codes []CodeDefinition) []string {
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		names = append(names, c.Code)
	}
	return names
}
