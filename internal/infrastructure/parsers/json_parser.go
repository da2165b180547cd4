package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONParser parses JSON files holding an array of flat objects, or a
// single object treated as a one-row table
type JSONParser struct {
	config *ParserConfig
}

// NewJSONParser creates a new JSON parser
func NewJSONParser(config *ParserConfig) *JSONParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONParser{config: config}
}

// Parse reads a JSON file from disk
func (p *JSONParser) Parse(ctx context.Context, filePath string) (*Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	if p.config.MaxFileSize > 0 {
		stat, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if stat.Size() > p.config.MaxFileSize {
			return nil, fmt.Errorf("file size %d exceeds maximum %d", stat.Size(), p.config.MaxFileSize)
		}
	}

	return p.ParseStream(ctx, file)
}

// ParseStream reads JSON data from an io.Reader
func (p *JSONParser) ParseStream(ctx context.Context, r io.Reader) (*Table, error) {
	decoder := json.NewDecoder(r)

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}

	var objects []map[string]interface{}
	if delim, ok := token.(json.Delim); ok && delim == '[' {
		for decoder.More() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			var obj map[string]interface{}
			if err := decoder.Decode(&obj); err != nil {
				return nil, fmt.Errorf("failed to decode JSON record: %w", err)
			}
			objects = append(objects, obj)
		}
	} else {
		// Single object; the body was already consumed past the opening
		// token, so this needs a seekable source
		rs, ok := r.(io.ReadSeeker)
		if !ok {
			return nil, fmt.Errorf("cannot parse single JSON object from non-seekable stream")
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind stream: %w", err)
		}

		var obj map[string]interface{}
		if err := json.NewDecoder(rs).Decode(&obj); err != nil {
			return nil, fmt.Errorf("failed to decode JSON object: %w", err)
		}
		objects = []map[string]interface{}{obj}
	}

	return tableFromObjects(objects, "JSON"), nil
}

// SupportedFormats returns the file extensions this parser handles
func (p *JSONParser) SupportedFormats() []string {
	return []string{".json"}
}

// tableFromObjects flattens decoded objects to string-cell rows. Column
// order follows first appearance across the records.
func tableFromObjects(objects []map[string]interface{}, format string) *Table {
	table := &Table{Columns: []string{}, Format: format}
	seen := make(map[string]bool)

	for _, obj := range objects {
		row := make(map[string]string, len(obj))
		for key, value := range obj {
			if !seen[key] {
				seen[key] = true
				table.Columns = append(table.Columns, key)
			}
			row[key] = stringifyCell(value)
		}
		table.Rows = append(table.Rows, row)
		table.TotalRows++
	}

	return table
}
