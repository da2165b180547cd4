package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surveylab/coding-service/internal/core/domain"
)

// LibraryStore is the persistence surface the library endpoints need
type LibraryStore interface {
	CreateLibrary(ctx context.Context, lib *domain.CodeLibrary) error
	GetLibrary(ctx context.Context, id uint) (*domain.CodeLibrary, error)
	ListLibraries(ctx context.Context) ([]domain.CodeLibrary, error)
	UpdateLibrary(ctx context.Context, lib *domain.CodeLibrary) error
	DeleteLibrary(ctx context.Context, id uint) error
}

// LibraryHandler exposes code library CRUD
type LibraryHandler struct {
	store LibraryStore
}

// NewLibraryHandler creates the library handler
func NewLibraryHandler(store LibraryStore) *LibraryHandler {
	return &LibraryHandler{store: store}
}

type libraryRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Codes       []string `json:"codes"`
}

// POST /api/v1/workshop/code-libraries
func (h *LibraryHandler) Create(c *gin.Context) {
	var req libraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.Name == "" {
		respondBadRequest(c, "name is required")
		return
	}
	if len(req.Codes) == 0 {
		respondBadRequest(c, "codes must not be empty")
		return
	}

	lib := &domain.CodeLibrary{
		Name:        req.Name,
		Description: req.Description,
		Codes:       req.Codes,
	}
	if err := h.store.CreateLibrary(c.Request.Context(), lib); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lib)
}

// GET /api/v1/workshop/code-libraries
func (h *LibraryHandler) List(c *gin.Context) {
	libs, err := h.store.ListLibraries(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"libraries": libs})
}

// GET /api/v1/workshop/code-libraries/:id
func (h *LibraryHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	lib, err := h.store.GetLibrary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lib)
}

// PUT /api/v1/workshop/code-libraries/:id
func (h *LibraryHandler) Update(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req libraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	lib, err := h.store.GetLibrary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Name != "" {
		lib.Name = req.Name
	}
	if req.Description != "" {
		lib.Description = req.Description
	}
	if len(req.Codes) > 0 {
		lib.Codes = req.Codes
	}

	if err := h.store.UpdateLibrary(c.Request.Context(), lib); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lib)
}

// DELETE /api/v1/workshop/code-libraries/:id
func (h *LibraryHandler) Delete(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetLibrary(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.DeleteLibrary(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
