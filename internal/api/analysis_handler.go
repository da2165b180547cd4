package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surveylab/coding-service/internal/core/services/analysis"
)

// AnalysisHandler exposes the task lifecycle over HTTP
type AnalysisHandler struct {
	orchestrator *analysis.Orchestrator
}

// NewAnalysisHandler creates the analysis handler
func NewAnalysisHandler(orchestrator *analysis.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{orchestrator: orchestrator}
}

// POST /api/v1/analysis/tasks
func (h *AnalysisHandler) CreateTask(c *gin.Context) {
	var req analysis.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	task, err := h.orchestrator.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

// POST /api/v1/analysis/tasks/:id/start
func (h *AnalysisHandler) StartTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := h.orchestrator.Start(c.Request.Context(), taskID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  "pending",
	})
}

// POST /api/v1/analysis/tasks/:id/rerun
func (h *AnalysisHandler) RerunTask(c *gin.Context) {
	taskID := c.Param("id")
	if err := h.orchestrator.Rerun(c.Request.Context(), taskID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  "pending",
	})
}

// GET /api/v1/analysis/tasks?project_id=
func (h *AnalysisHandler) ListTasks(c *gin.Context) {
	tasks, err := h.orchestrator.List(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// GET /api/v1/analysis/tasks/:id
func (h *AnalysisHandler) GetTask(c *gin.Context) {
	snapshot, err := h.orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// DELETE /api/v1/analysis/tasks/:id
func (h *AnalysisHandler) DeleteTask(c *gin.Context) {
	if err := h.orchestrator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
