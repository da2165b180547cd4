package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/surveylab/coding-service/internal/core/domain"
	apperrors "github.com/surveylab/coding-service/internal/pkg/errors"
)

// CodeLibraryRepository persists reusable code label sets
type CodeLibraryRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewCodeLibraryRepository creates a new repository instance
func NewCodeLibraryRepository(db *gorm.DB, logger *slog.Logger) *CodeLibraryRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &CodeLibraryRepository{
		db:     db,
		logger: logger,
	}
}

// CreateLibrary inserts a new library
func (r *CodeLibraryRepository) CreateLibrary(ctx context.Context, lib *domain.CodeLibrary) error {
	if err := r.db.WithContext(ctx).Create(lib).Error; err != nil {
		r.logger.Error("failed to create code library", slog.String("name", lib.Name), "error", err)
		return fmt.Errorf("failed to insert code library: %w", err)
	}
	return nil
}

// GetLibrary loads one library by id. A missing id maps to a not-found
// application error so column config resolution can report it precisely.
func (r *CodeLibraryRepository) GetLibrary(ctx context.Context, id uint) (*domain.CodeLibrary, error) {
	var lib domain.CodeLibrary
	if err := r.db.WithContext(ctx).First(&lib, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.RecordNotFound("code library")
		}
		return nil, fmt.Errorf("failed to load code library %d: %w", id, err)
	}
	return &lib, nil
}

// ListLibraries returns all libraries, newest first
func (r *CodeLibraryRepository) ListLibraries(ctx context.Context) ([]domain.CodeLibrary, error) {
	var libs []domain.CodeLibrary
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&libs).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list code libraries: %w", err)
	}
	return libs, nil
}

// UpdateLibrary saves name, description and codes of an existing library
func (r *CodeLibraryRepository) UpdateLibrary(ctx context.Context, lib *domain.CodeLibrary) error {
	if err := r.db.WithContext(ctx).Save(lib).Error; err != nil {
		r.logger.Error("failed to update code library", slog.Any("id", lib.ID), "error", err)
		return fmt.Errorf("failed to update code library: %w", err)
	}
	return nil
}

// DeleteLibrary removes a library
func (r *CodeLibraryRepository) DeleteLibrary(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.CodeLibrary{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete code library: %w", err)
	}
	return nil
}
