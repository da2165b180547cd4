package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/surveylab/coding-service/internal/core/domain"
	apperrors "github.com/surveylab/coding-service/internal/pkg/errors"
)

// setupTestDB creates a PostgreSQL testcontainer for testing
func setupTestDB(t *testing.T) *gorm.DB {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(pgdriver.Open(connStr), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&domain.AnalysisTask{},
		&domain.ColumnResult{},
		&domain.ClusterTestRun{},
		&domain.CodeLibrary{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func newTask() *domain.AnalysisTask {
	return &domain.AnalysisTask{
		ProjectID:      "proj-1",
		FileID:         "file-1",
		QuestionColumn: "id",
		Columns: []domain.ColumnJob{
			{
				Name: "feedback",
				Config: domain.ColumnConfig{
					Mode:        domain.ModeFixed,
					DefaultCode: "Other",
					Codes:       []domain.CodeDefinition{{Code: "Positive"}},
				},
			},
		},
		Status: domain.TaskStatusDraft,
	}
}

func TestTaskRepository_CreateAssignsID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db, nil)
	ctx := context.Background()

	task := newTask()
	assert.Empty(t, task.ID)

	err := repo.Create(ctx, task)
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)

	loaded, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDraft, loaded.Status)
	require.Len(t, loaded.Columns, 1)
	assert.Equal(t, "feedback", loaded.Columns[0].Name)
	assert.Equal(t, "Other", loaded.Columns[0].Config.DefaultCode)
}

func TestTaskRepository_ListFiltersByProject(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db, nil)
	ctx := context.Background()

	a := newTask()
	require.NoError(t, repo.Create(ctx, a))

	b := newTask()
	b.ProjectID = "proj-2"
	require.NoError(t, repo.Create(ctx, b))

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := repo.List(ctx, "proj-2")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, b.ID, only[0].ID)
}

func TestTaskRepository_TransitionStatusGuard(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db, nil)
	ctx := context.Background()

	task := newTask()
	require.NoError(t, repo.Create(ctx, task))

	// First claim wins
	ok, err := repo.TransitionStatus(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusDraft}, domain.TaskStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same guard again fails without touching the record
	ok, err = repo.TransitionStatus(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusDraft}, domain.TaskStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, loaded.Status)

	// Rerun-style guard accepts either terminal status
	_, err = repo.TransitionStatus(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusFailed)
	require.NoError(t, err)

	ok, err = repo.TransitionStatus(ctx, task.ID,
		[]domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed},
		domain.TaskStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTaskRepository_UpdateProgress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db, nil)
	ctx := context.Background()

	task := newTask()
	require.NoError(t, repo.Create(ctx, task))

	err := repo.UpdateProgress(ctx, task.ID, 42, "classifying feedback")
	require.NoError(t, err)

	loaded, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Progress)
	assert.Equal(t, "classifying feedback", loaded.CurrentMessage)
	assert.Equal(t, domain.TaskStatusDraft, loaded.Status)
}

func TestTaskRepository_ColumnResultsReplacedOnRerun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db, nil)
	ctx := context.Background()

	task := newTask()
	require.NoError(t, repo.Create(ctx, task))

	first := &domain.ColumnResult{
		TaskID: task.ID,
		Column: "feedback",
		Codes:  []domain.CodeDefinition{{Code: "Positive", Count: 2}},
		Rows: []domain.ClassificationRow{
			{RowID: "1", OriginalText: "great", AssignedCode: "Positive", Method: domain.MethodExactMapping},
		},
		Statistics: map[string]int{"Positive": 2},
	}
	require.NoError(t, repo.SaveColumnResult(ctx, first))

	// A second commit for the same column replaces the first
	second := &domain.ColumnResult{
		TaskID:     task.ID,
		Column:     "feedback",
		Codes:      []domain.CodeDefinition{{Code: "Other", Count: 3}},
		Statistics: map[string]int{"Other": 3},
	}
	require.NoError(t, repo.SaveColumnResult(ctx, second))

	results, err := repo.GetColumnResults(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]int{"Other": 3}, results[0].Statistics)

	require.NoError(t, repo.DeleteColumnResults(ctx, task.ID))
	results, err = repo.GetColumnResults(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTaskRepository_DeleteCascadesResults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTaskRepository(db, nil)
	ctx := context.Background()

	task := newTask()
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.SaveColumnResult(ctx, &domain.ColumnResult{
		TaskID: task.ID,
		Column: "feedback",
	}))

	require.NoError(t, repo.Delete(ctx, task.ID))

	_, err := repo.Get(ctx, task.ID)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&domain.ColumnResult{}).Where("task_id = ?", task.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestClusterTestRepository_HistoryNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewClusterTestRepository(db, nil)
	ctx := context.Background()

	older := &domain.ClusterTestRun{
		FileID:     "file-1",
		ColumnName: "feedback",
		Engine:     domain.EngineLLM,
		SampleSize: 50,
		MaxCodes:   10,
		Results:    []domain.CodeDefinition{{Code: "Fruit", Count: 5}},
	}
	require.NoError(t, repo.CreateRun(ctx, older))
	// autoCreateTime has second precision on some setups
	require.NoError(t, db.Model(older).Update("created_at", time.Now().Add(-time.Minute)).Error)

	newer := &domain.ClusterTestRun{
		FileID:     "file-1",
		ColumnName: "feedback",
		Engine:     domain.EngineClustering,
		SampleSize: domain.SampleSizeFullCorpus,
		MaxCodes:   10,
	}
	require.NoError(t, repo.CreateRun(ctx, newer))

	runs, err := repo.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	loaded, err := repo.GetRun(ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 1)
	assert.Equal(t, "Fruit", loaded.Results[0].Code)

	require.NoError(t, repo.DeleteRun(ctx, older.ID))
	_, err = repo.GetRun(ctx, older.ID)
	assert.Error(t, err)
}

func TestCodeLibraryRepository_Roundtrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCodeLibraryRepository(db, nil)
	ctx := context.Background()

	lib := &domain.CodeLibrary{
		Name:  "support_feedback",
		Codes: []string{"Positive", "Negative", "Other"},
	}
	require.NoError(t, repo.CreateLibrary(ctx, lib))
	assert.NotZero(t, lib.ID)

	loaded, err := repo.GetLibrary(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Positive", "Negative", "Other"}, loaded.Codes)

	loaded.Description = "codes for the support survey"
	require.NoError(t, repo.UpdateLibrary(ctx, loaded))

	libs, err := repo.ListLibraries(ctx)
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "codes for the support survey", libs[0].Description)

	require.NoError(t, repo.DeleteLibrary(ctx, lib.ID))
	_, err = repo.GetLibrary(ctx, lib.ID)
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, appErr.Code)
}
