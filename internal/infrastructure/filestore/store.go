package filestore

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/surveylab/coding-service/internal/infrastructure/parsers"
	"github.com/surveylab/coding-service/internal/infrastructure/storage"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// Store gives column-oriented access to uploaded survey files. Uploads
// are immutable, so a parsed table is cached for the process lifetime.
type Store struct {
	storage *storage.LocalStorage
	factory *parsers.ParserFactory
	logger  *slog.Logger

	mu     sync.Mutex
	tables map[string]*parsers.Table
}

// NewStore creates a file store over local upload storage
func NewStore(localStorage *storage.LocalStorage, factory *parsers.ParserFactory, logger *slog.Logger) *Store {
	if factory == nil {
		factory = parsers.NewParserFactory(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		storage: localStorage,
		factory: factory,
		logger:  logger,
		tables:  make(map[string]*parsers.Table),
	}
}

// ColumnValues returns one cell per row for a named column, in row
// order. Missing cells come back as "".
func (s *Store) ColumnValues(ctx context.Context, fileID, column string) ([]string, error) {
	table, err := s.table(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !table.HasColumn(column) {
		return nil, errors.ColumnMissing(column)
	}
	return table.ColumnValues(column), nil
}

// Columns lists the column names of an uploaded file
func (s *Store) Columns(ctx context.Context, fileID string) ([]string, error) {
	table, err := s.table(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return table.Columns, nil
}

// Invalidate drops the cached table for a file id; callers use it after
// deleting an upload
func (s *Store) Invalidate(fileID string) {
	s.mu.Lock()
	delete(s.tables, fileID)
	s.mu.Unlock()
}

func (s *Store) table(ctx context.Context, fileID string) (*parsers.Table, error) {
	s.mu.Lock()
	if table, ok := s.tables[fileID]; ok {
		s.mu.Unlock()
		return table, nil
	}
	s.mu.Unlock()

	path, err := s.storage.FindUpload(ctx, fileID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(fileID)
		}
		return nil, errors.InternalWrap(err, "failed to locate uploaded file")
	}

	table, err := s.factory.ParseFile(ctx, path)
	if err != nil {
		s.logger.Error("failed to parse uploaded file",
			slog.String("file_id", fileID),
			slog.String("path", path),
			"error", err)
		return nil, errors.InternalWrap(err, "failed to parse uploaded file")
	}

	s.logger.Debug("parsed uploaded file",
		slog.String("file_id", fileID),
		slog.String("format", table.Format),
		slog.Int("rows", len(table.Rows)))

	s.mu.Lock()
	s.tables[fileID] = table
	s.mu.Unlock()
	return table, nil
}
