package coding

import (
	"strings"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// mappingEntry keeps one mapping_dict pair with its normalized key so
// insertion order is preserved for partial matching
type mappingEntry struct {
	key  string
	code string
}

// Matcher is the deterministic resolution stage. It is built once per
// column run against the working code set and the mapping dictionary,
// then applied to every row.
type Matcher struct {
	mode    domain.CodingMode
	exact   map[string]string
	partial []mappingEntry
	codes   []domain.CodeDefinition
}

// NewMatcher prepares a matcher for one column. codes is the working code
// set: the fixed codes for fixed mode, the discovered codes for open mode.
func NewMatcher(mode domain.CodingMode, codes []domain.CodeDefinition, mappingDict map[string]string) *Matcher {
	m := &Matcher{
		mode:  mode,
		exact: make(map[string]string, len(mappingDict)),
		codes: codes,
	}
	for key, code := range mappingDict {
		norm := normalizeText(key)
		if norm == "" {
			continue
		}
		m.exact[norm] = code
		m.partial = append(m.partial, mappingEntry{key: norm, code: code})
	}
	return m
}

// Match resolves one row's text. The first stage that matches wins; an
// unmatched row returns ok=false and falls through to the AI or default
// stage.
func (m *Matcher) Match(text string) (code string, method domain.Method, ok bool) {
	norm := normalizeText(text)
	if norm == "" {
		return "", "", false
	}

	// Mapping keys are raw-text fragments. A key found verbatim inside
	// the answer is an exact mapping; an answer that is itself a
	// truncation of a key is a partial mapping.
	if code, found := m.exact[norm]; found {
		return code, domain.MethodExactMapping, true
	}
	for _, entry := range m.partial {
		if strings.Contains(norm, entry.key) {
			return entry.code, domain.MethodExactMapping, true
		}
	}
	for _, entry := range m.partial {
		if strings.Contains(entry.key, norm) {
			return entry.code, domain.MethodPartialMapping, true
		}
	}

	method = domain.MethodKeywordMatch
	if m.mode == domain.ModeFixed {
		method = domain.MethodFixedCodeMatch
	}

	for _, def := range m.codes {
		if label := normalizeText(def.Code); label != "" && strings.Contains(norm, label) {
			return def.Code, method, true
		}
	}
	for _, def := range m.codes {
		for _, kw := range def.Keywords {
			if k := normalizeText(kw); k != "" && strings.Contains(norm, k) {
				return def.Code, method, true
			}
		}
	}

	return "", "", false
}
