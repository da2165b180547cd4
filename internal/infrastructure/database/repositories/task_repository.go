package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// TaskRepository persists analysis tasks using GORM
type TaskRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new repository instance
func NewTaskRepository(db *gorm.DB, logger *slog.Logger) *TaskRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new task
func (r *TaskRepository) Create(ctx context.Context, task *domain.AnalysisTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.logger.Error("failed to create task", "error", err)
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get loads one task by id
func (r *TaskRepository) Get(ctx context.Context, id string) (*domain.AnalysisTask, error) {
	var task domain.AnalysisTask
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&task).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return &task, nil
}

// List returns tasks newest first, optionally filtered by project
func (r *TaskRepository) List(ctx context.Context, projectID string) ([]domain.AnalysisTask, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}

	var tasks []domain.AnalysisTask
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Update saves the full task record
func (r *TaskRepository) Update(ctx context.Context, task *domain.AnalysisTask) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		r.logger.Error("failed to update task", slog.String("task_id", task.ID), "error", err)
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// UpdateProgress writes only the progress counter and status message, so
// the worker's frequent updates do not race with full saves
func (r *TaskRepository) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	err := r.db.WithContext(ctx).
		Model(&domain.AnalysisTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":        progress,
			"current_message": message,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// TransitionStatus atomically moves a task from one of the given statuses
// to the target. The guard lives in the WHERE clause, so of two competing
// transitions exactly one observes rows affected.
func (r *TaskRepository) TransitionStatus(ctx context.Context, id string, from []domain.TaskStatus, to domain.TaskStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.AnalysisTask{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		r.logger.Error("failed to transition status",
			slog.String("task_id", id),
			slog.String("to", string(to)),
			"error", result.Error)
		return false, fmt.Errorf("failed to transition status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes a task; its column results go with it via the cascade
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&domain.AnalysisTask{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// SaveColumnResult commits one finished column. The unique index on
// (task_id, column) makes a rerun's write replace the previous run's row.
func (r *TaskRepository) SaveColumnResult(ctx context.Context, result *domain.ColumnResult) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "column"}},
			UpdateAll: true,
		}).
		Create(result).
		Error
	if err != nil {
		r.logger.Error("failed to save column result",
			slog.String("task_id", result.TaskID),
			slog.String("column", result.Column),
			"error", err)
		return fmt.Errorf("failed to save column result: %w", err)
	}
	return nil
}

// GetColumnResults loads all committed columns of a task
func (r *TaskRepository) GetColumnResults(ctx context.Context, taskID string) ([]domain.ColumnResult, error) {
	var results []domain.ColumnResult
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id ASC").
		Find(&results).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to load column results: %w", err)
	}
	return results, nil
}

// DeleteColumnResults drops a task's committed columns, used by rerun
func (r *TaskRepository) DeleteColumnResults(ctx context.Context, taskID string) error {
	if err := r.db.WithContext(ctx).Delete(&domain.ColumnResult{}, "task_id = ?", taskID).Error; err != nil {
		return fmt.Errorf("failed to delete column results: %w", err)
	}
	return nil
}
