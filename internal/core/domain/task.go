package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of an analysis task
type TaskStatus string

const (
	TaskStatusDraft      TaskStatus = "draft"
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ValidTaskStatuses returns list of valid task statuses
func ValidTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusDraft,
		TaskStatusPending,
		TaskStatusProcessing,
		TaskStatusCompleted,
		TaskStatusFailed,
	}
}

// IsTerminal reports whether no further transition happens without an
// explicit rerun
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanStart reports whether an initial start is allowed from this status
func (s TaskStatus) CanStart() bool {
	return s == TaskStatusDraft
}

// CanRerun reports whether a rerun is allowed from this status
func (s TaskStatus) CanRerun() bool {
	return s.IsTerminal()
}

// CanDelete reports whether the task may be removed. Deletion is refused
// while a worker owns the task.
func (s TaskStatus) CanDelete() bool {
	return s != TaskStatusProcessing
}

// AnalysisTask is the unit of asynchronous classification work: one file,
// an ordered list of column jobs, aggregate progress and statistics.
// Only the orchestrator worker mutates a task after it leaves draft.
type AnalysisTask struct {
	ID             string `gorm:"type:varchar(36);primaryKey" json:"task_id"`
	ProjectID      string `gorm:"type:varchar(64);index:idx_tasks_project" json:"project_id"`
	FileID         string `gorm:"type:varchar(64);not null" json:"file_id"`
	QuestionColumn string `gorm:"type:varchar(255)" json:"question_column"`

	Columns        []ColumnJob `gorm:"serializer:json;type:jsonb" json:"columns"`
	GenerateCharts bool        `gorm:"default:true" json:"generate_charts"`

	Status         TaskStatus `gorm:"type:varchar(20);not null;default:'draft';index:idx_tasks_status" json:"status"`
	Progress       int        `gorm:"default:0" json:"progress"`
	TotalRows      int        `gorm:"default:0" json:"total"`
	CurrentMessage string     `gorm:"type:varchar(500)" json:"current_message,omitempty"`

	Statistics Statistics `gorm:"serializer:json;type:jsonb" json:"statistics,omitempty"`
	Warnings   []string   `gorm:"serializer:json;type:jsonb" json:"warnings,omitempty"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Results []ColumnResult `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM
func (AnalysisTask) TableName() string {
	return "analysis_tasks"
}

// BeforeCreate GORM hook
func (t *AnalysisTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Job returns the column job with the given name, or nil
func (t *AnalysisTask) Job(column string) *ColumnJob {
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			return &t.Columns[i]
		}
	}
	return nil
}

// ResetForRerun clears everything a previous run produced so the task can
// go through pending → processing again with fresh state
func (t *AnalysisTask) ResetForRerun() {
	t.Status = TaskStatusPending
	t.Progress = 0
	t.TotalRows = 0
	t.CurrentMessage = "waiting for rerun"
	t.Statistics = nil
	t.Warnings = nil
	t.Error = ""
	t.CompletedAt = nil
}

// ColumnResult stores one finished column job: the working code set, the
// per-row classifications and the per-code counts. One record is written
// per column, atomically, before the next column starts.
type ColumnResult struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	TaskID string `gorm:"type:varchar(36);not null;index:idx_column_results_task;uniqueIndex:idx_column_results_task_column" json:"task_id"`
	Column string `gorm:"type:varchar(255);not null;uniqueIndex:idx_column_results_task_column" json:"column"`

	Codes      []CodeDefinition    `gorm:"serializer:json;type:jsonb" json:"codes"`
	Rows       []ClassificationRow `gorm:"serializer:json;type:jsonb" json:"results"`
	Statistics map[string]int      `gorm:"serializer:json;type:jsonb" json:"statistics"`
}

// TableName specifies the table name for GORM
func (ColumnResult) TableName() string {
	return "column_results"
}
