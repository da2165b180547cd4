package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVParser parses CSV files
type CSVParser struct {
	config *ParserConfig
}

// NewCSVParser creates a new CSV parser
func NewCSVParser(config *ParserConfig) *CSVParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &CSVParser{config: config}
}

// Parse reads a CSV file from disk
func (p *CSVParser) Parse(ctx context.Context, filePath string) (*Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
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

// ParseStream reads CSV data from an io.Reader
func (p *CSVParser) ParseStream(ctx context.Context, r io.Reader) (*Table, error) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = p.config.TrimWhitespace
	csvReader.FieldsPerRecord = -1 // Rows may carry fewer cells than the header

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if p.config.TrimWhitespace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	table := &Table{Columns: header, Format: "CSV"}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cells, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed rows but continue parsing
			table.TotalRows++
			table.SkippedRows++
			continue
		}

		table.TotalRows++

		if p.config.SkipEmptyRows && isEmptyRow(cells) {
			table.SkippedRows++
			continue
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			var value string
			if i < len(cells) {
				value = cells[i]
				if p.config.TrimWhitespace {
					value = strings.TrimSpace(value)
				}
			}
			row[col] = value
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// SupportedFormats returns the file extensions this parser handles
func (p *CSVParser) SupportedFormats() []string {
	return []string{".csv"}
}

// isEmptyRow checks if a row contains only blank cells
func isEmptyRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
