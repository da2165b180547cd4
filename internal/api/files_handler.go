package api

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surveylab/coding-service/internal/infrastructure/filestore"
	"github.com/surveylab/coding-service/internal/infrastructure/parsers"
	"github.com/surveylab/coding-service/internal/infrastructure/storage"
)

// FilesHandler accepts survey file uploads and exposes their columns
type FilesHandler struct {
	storage *storage.LocalStorage
	store   *filestore.Store
	factory *parsers.ParserFactory
}

// NewFilesHandler creates the files handler
func NewFilesHandler(localStorage *storage.LocalStorage, store *filestore.Store, factory *parsers.ParserFactory) *FilesHandler {
	if factory == nil {
		factory = parsers.NewParserFactory(nil)
	}
	return &FilesHandler{
		storage: localStorage,
		store:   store,
		factory: factory,
	}
}

// POST /api/v1/files (multipart, field "file")
func (h *FilesHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "missing file field")
		return
	}

	ext := filepath.Ext(fileHeader.Filename)
	if !h.factory.IsSupported(ext) {
		respondBadRequest(c, "unsupported file format: "+ext)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondBadRequest(c, "failed to read upload")
		return
	}
	defer src.Close()

	fileID := uuid.NewString()
	metadata, err := h.storage.SaveUpload(c.Request.Context(), fileID, fileHeader.Filename, src)
	if err != nil {
		respondError(c, err)
		return
	}

	// Surface the column names right away so the client can build
	// column configs without a second request
	columns, err := h.store.Columns(c.Request.Context(), fileID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file_id":  fileID,
		"filename": metadata.OriginalName,
		"size":     metadata.Size,
		"columns":  columns,
	})
}

// GET /api/v1/files/:id/columns
func (h *FilesHandler) Columns(c *gin.Context) {
	columns, err := h.store.Columns(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"columns": columns})
}

// DELETE /api/v1/files/:id
func (h *FilesHandler) Delete(c *gin.Context) {
	fileID := c.Param("id")
	if err := h.storage.DeleteUpload(c.Request.Context(), fileID); err != nil {
		respondError(c, err)
		return
	}
	h.store.Invalidate(fileID)

	c.Status(http.StatusNoContent)
}
