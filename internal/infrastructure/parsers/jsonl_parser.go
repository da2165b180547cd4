package parsers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONLParser parses JSONL/NDJSON files (newline-delimited JSON)
type JSONLParser struct {
	config *ParserConfig
}

// NewJSONLParser creates a new JSONL parser
func NewJSONLParser(config *ParserConfig) *JSONLParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONLParser{config: config}
}

// Parse reads a JSONL file from disk
func (p *JSONLParser) Parse(ctx context.Context, filePath string) (*Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
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

// ParseStream reads JSONL data from an io.Reader
func (p *JSONLParser) ParseStream(ctx context.Context, r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	// Survey exports can carry long free-text cells, allow 1MB per line
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	table := &Table{Columns: []string{}, Format: "JSONL"}
	seen := make(map[string]bool)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		table.TotalRows++

		if len(line) == 0 {
			table.SkippedRows++
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal(line, &obj); err != nil {
			// Skip malformed lines but continue parsing
			table.SkippedRows++
			continue
		}
		if p.config.SkipEmptyRows && len(obj) == 0 {
			table.SkippedRows++
			continue
		}

		row := make(map[string]string, len(obj))
		for key, value := range obj {
			if !seen[key] {
				seen[key] = true
				table.Columns = append(table.Columns, key)
			}
			row[key] = stringifyCell(value)
		}
		table.Rows = append(table.Rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading JSONL stream: %w", err)
	}

	return table, nil
}

// SupportedFormats returns the file extensions this parser handles
func (p *JSONLParser) SupportedFormats() []string {
	return []string{".jsonl", ".ndjson"}
}
