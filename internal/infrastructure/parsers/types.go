package parsers

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Table is one parsed tabular upload. Column order follows the source
// file; every cell is a string, with "" standing in for missing cells.
type Table struct {
	Columns     []string
	Rows        []map[string]string
	TotalRows   int
	SkippedRows int
	Format      string
}

// HasColumn reports whether a column of that name exists
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnValues returns one cell per row for the named column, in row
// order. Rows without the cell contribute "".
func (t *Table) ColumnValues(name string) []string {
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values
}

// TableParser is the interface all format parsers implement
type TableParser interface {
	// Parse reads a file from the given path
	Parse(ctx context.Context, filePath string) (*Table, error)

	// ParseStream reads from an io.Reader
	ParseStream(ctx context.Context, r io.Reader) (*Table, error)

	// SupportedFormats returns the file extensions this parser handles
	SupportedFormats() []string
}

// ParserConfig holds configuration shared by all parsers
type ParserConfig struct {
	// SkipEmptyRows drops rows whose cells are all blank
	SkipEmptyRows bool

	// TrimWhitespace trims cell values and column names
	TrimWhitespace bool

	// MaxFileSize is the maximum file size in bytes (0 = unlimited)
	MaxFileSize int64
}

// DefaultParserConfig returns sensible defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		SkipEmptyRows:  true,
		TrimWhitespace: true,
		MaxFileSize:    500 * 1024 * 1024, // 500 MB
	}
}

// stringifyCell renders a decoded JSON value as a table cell. Whole
// numbers print without the float suffix encoding/json gives them.
func stringifyCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
