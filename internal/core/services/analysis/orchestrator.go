package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/coding"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// TaskRepository persists analysis tasks and their per-column results.
// TransitionStatus must be atomic: it moves a task from one of the given
// statuses to the target and reports whether the guard held, so two
// competing starts cannot both win.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.AnalysisTask) error
	Get(ctx context.Context, id string) (*domain.AnalysisTask, error)
	List(ctx context.Context, projectID string) ([]domain.AnalysisTask, error)
	Update(ctx context.Context, task *domain.AnalysisTask) error
	UpdateProgress(ctx context.Context, id string, progress int, message string) error
	TransitionStatus(ctx context.Context, id string, from []domain.TaskStatus, to domain.TaskStatus) (bool, error)
	Delete(ctx context.Context, id string) error

	SaveColumnResult(ctx context.Context, result *domain.ColumnResult) error
	GetColumnResults(ctx context.Context, taskID string) ([]domain.ColumnResult, error)
	DeleteColumnResults(ctx context.Context, taskID string) error
}

// Enqueuer hands a task id to the background worker. Implemented by the
// asynq task queue.
type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, taskID string) error
}

// TableSource reads one column of an uploaded file. Implemented by the
// file store.
type TableSource interface {
	ColumnValues(ctx context.Context, fileID, column string) ([]string, error)
}

// LibraryWriter records auto-created code libraries for open-coding runs
type LibraryWriter interface {
	CreateLibrary(ctx context.Context, lib *domain.CodeLibrary) error
}

// CreateTaskRequest is the submission payload for a new analysis task
type CreateTaskRequest struct {
	ProjectID      string                            `json:"project_id"`
	FileID         string                            `json:"file_id"`
	QuestionColumn string                            `json:"question_column"`
	Columns        []string                          `json:"columns"`
	ColumnConfigs  map[string]coding.RawColumnConfig `json:"column_configs"`
	GenerateCharts bool                              `json:"generate_charts"`
}

// TaskSnapshot is the polling view of a task: the task record plus the
// per-column rows committed so far
type TaskSnapshot struct {
	*domain.AnalysisTask
	Results map[string][]domain.ClassificationRow `json:"results,omitempty"`
}

// Orchestrator owns the task lifecycle. Creation validates configs and
// leaves the task in draft; start and rerun hand it to the background
// worker; ProcessTask is the worker side, the only writer of a task
// after it leaves draft.
type Orchestrator struct {
	tasks     TaskRepository
	queue     Enqueuer
	files     TableSource
	libraries LibraryWriter
	resolver  *coding.Resolver
	pipeline  *coding.Pipeline
	logger    *slog.Logger
}

// NewOrchestrator creates the task orchestrator
func NewOrchestrator(tasks TaskRepository, queue Enqueuer, files TableSource, libraries LibraryWriter, resolver *coding.Resolver, pipeline *coding.Pipeline, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		tasks:     tasks,
		queue:     queue,
		files:     files,
		libraries: libraries,
		resolver:  resolver,
		pipeline:  pipeline,
		logger:    logger,
	}
}

// Create validates every selected column's configuration and persists the
// task in draft. Any column failing validation rejects the whole
// submission; the per-column errors ride along on the returned error.
func (o *Orchestrator) Create(ctx context.Context, req CreateTaskRequest) (*domain.AnalysisTask, error) {
	if req.FileID == "" {
		return nil, errors.BadRequest("file_id is required")
	}
	if len(req.Columns) == 0 {
		return nil, errors.BadRequest("at least one column must be selected")
	}

	jobs, configErrs := o.resolver.ResolveConfigs(ctx, req.Columns, req.ColumnConfigs)
	if len(configErrs) > 0 {
		appErr := errors.New(errors.ErrCodeInvalidConfig, "one or more column configurations are invalid", http.StatusBadRequest)
		details := make([]map[string]string, 0, len(configErrs))
		for _, ce := range configErrs {
			details = append(details, map[string]string{
				"column":  ce.Column,
				"code":    string(ce.Err.Code),
				"message": ce.Err.Message,
			})
		}
		return nil, appErr.WithDetails("columns", details)
	}

	// The file must exist and carry the selected columns before any
	// asynchronous work is accepted
	for _, job := range jobs {
		if _, err := o.files.ColumnValues(ctx, req.FileID, job.Name); err != nil {
			return nil, err
		}
	}

	task := &domain.AnalysisTask{
		ProjectID:      req.ProjectID,
		FileID:         req.FileID,
		QuestionColumn: req.QuestionColumn,
		Columns:        jobs,
		GenerateCharts: req.GenerateCharts,
		Status:         domain.TaskStatusDraft,
	}
	if err := o.tasks.Create(ctx, task); err != nil {
		return nil, errors.DatabaseError(err)
	}

	o.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("file_id", task.FileID),
		slog.Int("columns", len(jobs)))

	return task, nil
}

// Start moves a draft task to pending and enqueues it. Starting a task
// that is not in draft is a conflict, not a queue.
func (o *Orchestrator) Start(ctx context.Context, taskID string) error {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return errors.TaskNotFound(taskID)
	}

	ok, err := o.tasks.TransitionStatus(ctx, taskID, []domain.TaskStatus{domain.TaskStatusDraft}, domain.TaskStatusPending)
	if err != nil {
		return errors.DatabaseError(err)
	}
	if !ok {
		return errors.TaskConflict(taskID, fmt.Sprintf("task cannot be started from status %s", task.Status))
	}

	return o.enqueue(ctx, taskID)
}

// Rerun resets a terminal task and enqueues it again. Same inputs, fresh
// state: previous results, statistics and error are cleared first.
func (o *Orchestrator) Rerun(ctx context.Context, taskID string) error {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return errors.TaskNotFound(taskID)
	}

	ok, err := o.tasks.TransitionStatus(ctx, taskID,
		[]domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed}, domain.TaskStatusPending)
	if err != nil {
		return errors.DatabaseError(err)
	}
	if !ok {
		return errors.TaskConflict(taskID, fmt.Sprintf("task cannot be rerun from status %s", task.Status))
	}

	if err := o.tasks.DeleteColumnResults(ctx, taskID); err != nil {
		return errors.DatabaseError(err)
	}
	task.ResetForRerun()
	if err := o.tasks.Update(ctx, task); err != nil {
		return errors.DatabaseError(err)
	}

	return o.enqueue(ctx, taskID)
}

func (o *Orchestrator) enqueue(ctx context.Context, taskID string) error {
	if err := o.queue.EnqueueAnalysis(ctx, taskID); err != nil {
		// Leave the task in a rerunnable state instead of pending forever
		if _, terr := o.tasks.TransitionStatus(ctx, taskID, []domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusFailed); terr != nil {
			o.logger.Error("failed to mark unqueued task", slog.String("task_id", taskID), "error", terr)
		}
		return errors.InternalWrap(err, "failed to enqueue task")
	}
	o.logger.Info("task enqueued", slog.String("task_id", taskID))
	return nil
}

// Get returns the polling snapshot: task state plus committed results
func (o *Orchestrator) Get(ctx context.Context, taskID string) (*TaskSnapshot, error) {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, errors.TaskNotFound(taskID)
	}

	results, err := o.tasks.GetColumnResults(ctx, taskID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	snapshot := &TaskSnapshot{AnalysisTask: task}
	if len(results) > 0 {
		snapshot.Results = make(map[string][]domain.ClassificationRow, len(results))
		for _, r := range results {
			snapshot.Results[r.Column] = r.Rows
		}
	}
	return snapshot, nil
}

// List returns all tasks for a project, without row-level results
func (o *Orchestrator) List(ctx context.Context, projectID string) ([]domain.AnalysisTask, error) {
	tasks, err := o.tasks.List(ctx, projectID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return tasks, nil
}

// Delete removes a task. Refused while a worker owns it.
func (o *Orchestrator) Delete(ctx context.Context, taskID string) error {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return errors.TaskNotFound(taskID)
	}
	if !task.Status.CanDelete() {
		return errors.TaskConflict(taskID, "task is processing and cannot be deleted")
	}
	if err := o.tasks.Delete(ctx, taskID); err != nil {
		return errors.DatabaseError(err)
	}
	o.logger.Info("task deleted", slog.String("task_id", taskID))
	return nil
}

// ProcessTask is the worker entry point. It claims the task, runs every
// column job strictly in order and commits each column's result before
// the next starts. A column failure fails the task but keeps the columns
// already committed in this run.
func (o *Orchestrator) ProcessTask(ctx context.Context, taskID string) error {
	claimed, err := o.tasks.TransitionStatus(ctx, taskID,
		[]domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusProcessing)
	if err != nil {
		return errors.DatabaseError(err)
	}
	if !claimed {
		// Duplicate delivery or a stale queue entry; nothing to do
		o.logger.Warn("task not claimable, skipping", slog.String("task_id", taskID))
		return nil
	}

	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return errors.TaskNotFound(taskID)
	}

	o.logger.Info("task processing started",
		slog.String("task_id", taskID),
		slog.Int("columns", len(task.Columns)))

	if err := o.runColumns(ctx, task); err != nil {
		task.Status = domain.TaskStatusFailed
		task.Error = err.Error()
		task.CurrentMessage = "failed"
		if uerr := o.tasks.Update(ctx, task); uerr != nil {
			o.logger.Error("failed to persist task failure", slog.String("task_id", taskID), "error", uerr)
		}
		o.logger.Error("task failed", slog.String("task_id", taskID), "error", err)
		// The failure lives in the task record; returning nil keeps the
		// queue from retrying a task the caller observes via polling
		return nil
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusCompleted
	task.Progress = 100
	task.CurrentMessage = "completed"
	task.CompletedAt = &now
	if err := o.tasks.Update(ctx, task); err != nil {
		return errors.DatabaseError(err)
	}

	o.logger.Info("task completed", slog.String("task_id", taskID))
	return nil
}

func (o *Orchestrator) runColumns(ctx context.Context, task *domain.AnalysisTask) error {
	rowIDs, rowCount, err := o.loadRowIDs(ctx, task)
	if err != nil {
		return err
	}

	task.TotalRows = rowCount
	task.Statistics = make(domain.Statistics, len(task.Columns))
	if err := o.tasks.Update(ctx, task); err != nil {
		return errors.DatabaseError(err)
	}

	totalUnits := rowCount * len(task.Columns)
	unitsDone := 0

	for i, job := range task.Columns {
		msg := fmt.Sprintf("processing column %s (%d/%d)", job.Name, i+1, len(task.Columns))
		o.updateProgress(ctx, task.ID, percent(unitsDone, totalUnits), msg)

		texts, err := o.files.ColumnValues(ctx, task.FileID, job.Name)
		if err != nil {
			return err
		}
		if len(texts) != rowCount {
			return errors.Internal(fmt.Sprintf("column %s has %d rows, expected %d", job.Name, len(texts), rowCount))
		}

		columnStart := unitsDone
		outcome, err := o.pipeline.ClassifyColumn(ctx, rowIDs, texts, job.Config, func(done int) {
			// Progress writes are throttled to whole-percent changes
			next := percent(columnStart+done, totalUnits)
			if next > percent(unitsDone, totalUnits) {
				o.updateProgress(ctx, task.ID, next, msg)
			}
			unitsDone = columnStart + done
		})
		if err != nil {
			return err
		}
		unitsDone = columnStart + rowCount

		o.recordGeneratedLibrary(ctx, task, i, outcome)

		result := &domain.ColumnResult{
			TaskID:     task.ID,
			Column:     job.Name,
			Codes:      outcome.Codes,
			Rows:       outcome.Rows,
			Statistics: outcome.Statistics,
		}
		if err := o.tasks.SaveColumnResult(ctx, result); err != nil {
			return errors.DatabaseError(err)
		}

		task.Statistics[job.Name] = outcome.Statistics
		task.Warnings = append(task.Warnings, outcome.Warnings...)
		if err := o.tasks.Update(ctx, task); err != nil {
			return errors.DatabaseError(err)
		}
	}

	return nil
}

// loadRowIDs derives stable row ids from the question column when one is
// configured, falling back to 1-based row indexes
func (o *Orchestrator) loadRowIDs(ctx context.Context, task *domain.AnalysisTask) ([]string, int, error) {
	if len(task.Columns) == 0 {
		return nil, 0, errors.BadRequest("task has no column jobs")
	}

	reference, err := o.files.ColumnValues(ctx, task.FileID, task.Columns[0].Name)
	if err != nil {
		return nil, 0, err
	}
	rowCount := len(reference)

	var idColumn []string
	if task.QuestionColumn != "" {
		if values, err := o.files.ColumnValues(ctx, task.FileID, task.QuestionColumn); err == nil && len(values) == rowCount {
			idColumn = values
		}
	}

	rowIDs := make([]string, rowCount)
	for i := range rowIDs {
		if idColumn != nil && strings.TrimSpace(idColumn[i]) != "" {
			rowIDs[i] = idColumn[i]
		} else {
			rowIDs[i] = fmt.Sprint(i + 1)
		}
	}
	return rowIDs, rowCount, nil
}

// recordGeneratedLibrary saves the discovered code set of an open-coding
// column as a reusable library and notes it on the job config
func (o *Orchestrator) recordGeneratedLibrary(ctx context.Context, task *domain.AnalysisTask, jobIdx int, outcome *coding.ColumnOutcome) {
	job := &task.Columns[jobIdx]
	if !job.Config.ClassificationMode.OpenCoding() || o.libraries == nil {
		return
	}

	name := generatedLibraryName(task.ProjectID, job.Name)
	lib := &domain.CodeLibrary{
		Name:        name,
		Description: fmt.Sprintf("Auto-created from open coding of column %q", job.Name),
		Codes:       domain.CodeNames(outcome.Codes),
	}
	if err := o.libraries.CreateLibrary(ctx, lib); err != nil {
		o.logger.Warn("failed to record generated code library",
			slog.String("task_id", task.ID),
			slog.String("column", job.Name),
			"error", err)
		return
	}

	job.Config.GeneratedLibraryID = lib.ID
	job.Config.GeneratedLibraryName = name
}

func generatedLibraryName(projectID, column string) string {
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	if projectID == "" {
		projectID = "project"
	}
	return fmt.Sprintf("%s_%s_%s", projectID, column, short)
}

func (o *Orchestrator) updateProgress(ctx context.Context, taskID string, progress int, message string) {
	if err := o.tasks.UpdateProgress(ctx, taskID, progress, message); err != nil {
		o.logger.Warn("failed to update progress", slog.String("task_id", taskID), "error", err)
	}
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 99 {
		p = 99
	}
	return p
}
