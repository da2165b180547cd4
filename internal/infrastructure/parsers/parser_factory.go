package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// ParserFactory selects the right parser by file extension
type ParserFactory struct {
	config  *ParserConfig
	parsers map[string]TableParser
}

// NewParserFactory creates a factory with all built-in parsers
func NewParserFactory(config *ParserConfig) *ParserFactory {
	if config == nil {
		config = DefaultParserConfig()
	}

	factory := &ParserFactory{
		config:  config,
		parsers: make(map[string]TableParser),
	}

	factory.RegisterParser(NewCSVParser(config))
	factory.RegisterParser(NewExcelParser(config))
	factory.RegisterParser(NewJSONParser(config))
	factory.RegisterParser(NewJSONLParser(config))

	return factory
}

// RegisterParser registers a custom parser
func (f *ParserFactory) RegisterParser(parser TableParser) {
	for _, ext := range parser.SupportedFormats() {
		f.parsers[normalizeExt(ext)] = parser
	}
}

// GetParser returns the parser for a file extension
func (f *ParserFactory) GetParser(fileExt string) (TableParser, error) {
	parser, exists := f.parsers[normalizeExt(fileExt)]
	if !exists {
		return nil, fmt.Errorf("no parser found for extension: %s", fileExt)
	}
	return parser, nil
}

// ParseFile selects a parser by the path's extension and runs it
func (f *ParserFactory) ParseFile(ctx context.Context, filePath string) (*Table, error) {
	parser, err := f.GetParser(filepath.Ext(filePath))
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, filePath)
}

// SupportedFormats returns all supported file extensions
func (f *ParserFactory) SupportedFormats() []string {
	formats := make([]string, 0, len(f.parsers))
	for ext := range f.parsers {
		formats = append(formats, ext)
	}
	return formats
}

// IsSupported checks if a file extension is supported
func (f *ParserFactory) IsSupported(fileExt string) bool {
	_, exists := f.parsers[normalizeExt(fileExt)]
	return exists
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
