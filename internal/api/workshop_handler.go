package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/core/services/workshop"
	apperrors "github.com/surveylab/coding-service/internal/pkg/errors"
)

// WorkshopHandler exposes cluster test runs and the classified-data
// cache over HTTP
type WorkshopHandler struct {
	service *workshop.Service
}

// NewWorkshopHandler creates the workshop handler
func NewWorkshopHandler(service *workshop.Service) *WorkshopHandler {
	return &WorkshopHandler{service: service}
}

// POST /api/v1/workshop/cluster-test
func (h *WorkshopHandler) RunClusterTest(c *gin.Context) {
	var req workshop.ClusterTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	run, err := h.service.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, run)
}

// POST /api/v1/workshop/cluster-test/batch
func (h *WorkshopHandler) RunClusterTestBatch(c *gin.Context) {
	var body struct {
		Runs []workshop.ClusterTestRequest `json:"runs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if len(body.Runs) == 0 {
		respondBadRequest(c, "no runs submitted")
		return
	}

	outcomes := h.service.RunAll(c.Request.Context(), body.Runs)
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

// GET /api/v1/workshop/cluster-test/history?file_id=&limit=
func (h *WorkshopHandler) History(c *gin.Context) {
	runs, err := h.service.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if fileID := c.Query("file_id"); fileID != "" {
		filtered := make([]domain.ClusterTestRun, 0, len(runs))
		for _, run := range runs {
			if run.FileID == fileID {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondBadRequest(c, "invalid limit")
			return
		}
		if limit < len(runs) {
			runs = runs[:limit]
		}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GET /api/v1/workshop/cluster-test/:id
//
// The cached detail payload is merged in when still present; after the
// TTL the run record alone is returned.
func (h *WorkshopHandler) GetClusterTest(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var classified domain.ClassifiedData
	if cached, err := h.service.ClassifiedData(c.Request.Context(), id); err == nil {
		classified = cached.Data
	}

	c.JSON(http.StatusOK, gin.H{
		"run":             run,
		"classified_data": classified,
	})
}

// DELETE /api/v1/workshop/cluster-test/:id
func (h *WorkshopHandler) DeleteClusterTest(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRun(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// POST /api/v1/workshop/classified-data/cache
func (h *WorkshopHandler) CacheClassifiedData(c *gin.Context) {
	var body struct {
		Data domain.ClassifiedData `json:"classified_data"`
		Meta workshop.CacheMeta    `json:"meta"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if len(body.Data) == 0 {
		respondBadRequest(c, "classified_data is empty")
		return
	}

	cacheID, err := h.service.CachePayload(c.Request.Context(), body.Data, body.Meta)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"cache_id": cacheID})
}

// GET /api/v1/workshop/classified-data/cache/:id
func (h *WorkshopHandler) GetCachedClassifiedData(c *gin.Context) {
	cached, err := h.service.CachedPayload(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, workshop.ErrCacheMiss) {
			respondError(c, apperrors.New(apperrors.ErrCodeCacheMiss,
				"cached payload not found or expired", http.StatusNotFound))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cached)
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(value), true
}
