package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// ClusterTestRepository persists discovery comparison runs
type ClusterTestRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewClusterTestRepository creates a new repository instance
func NewClusterTestRepository(db *gorm.DB, logger *slog.Logger) *ClusterTestRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClusterTestRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRun inserts a finished run
func (r *ClusterTestRepository) CreateRun(ctx context.Context, run *domain.ClusterTestRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		r.logger.Error("failed to create cluster test run",
			slog.String("column", run.ColumnName),
			"error", err)
		return fmt.Errorf("failed to insert cluster test run: %w", err)
	}
	return nil
}

// GetRun loads one run by id
func (r *ClusterTestRepository) GetRun(ctx context.Context, id uint) (*domain.ClusterTestRun, error) {
	var run domain.ClusterTestRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load cluster test run %d: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the run history, newest first
func (r *ClusterTestRepository) ListRuns(ctx context.Context) ([]domain.ClusterTestRun, error) {
	var runs []domain.ClusterTestRun
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&runs).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster test runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run from the history
func (r *ClusterTestRepository) DeleteRun(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.ClusterTestRun{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete cluster test run: %w", err)
	}
	return nil
}
