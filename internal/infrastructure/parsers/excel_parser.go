package parsers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelParser parses Excel workbooks (.xlsx, .xls); only the first
// sheet is read
type ExcelParser struct {
	config *ParserConfig
}

// NewExcelParser creates a new Excel parser
func NewExcelParser(config *ParserConfig) *ExcelParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &ExcelParser{config: config}
}

// Parse reads an Excel file from disk
func (p *ExcelParser) Parse(ctx context.Context, filePath string) (*Table, error) {
	if p.config.MaxFileSize > 0 {
		stat, err := os.Stat(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if stat.Size() > p.config.MaxFileSize {
			return nil, fmt.Errorf("file size %d exceeds maximum %d", stat.Size(), p.config.MaxFileSize)
		}
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	return p.parseWorkbook(ctx, f)
}

// ParseStream reads Excel data from an io.Reader
func (p *ExcelParser) ParseStream(ctx context.Context, r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel stream: %w", err)
	}
	defer f.Close()

	return p.parseWorkbook(ctx, f)
}

func (p *ExcelParser) parseWorkbook(ctx context.Context, f *excelize.File) (*Table, error) {
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return &Table{Columns: []string{}, Format: "XLSX"}, nil
	}

	header := rows[0]
	if p.config.TrimWhitespace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	table := &Table{Columns: header, Format: "XLSX"}

	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cells := rows[rowIdx]
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
func (p *ExcelParser) SupportedFormats() []string {
	return []string{".xlsx", ".xls"}
}
