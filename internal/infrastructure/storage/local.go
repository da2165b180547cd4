package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage keeps uploaded survey files on the local filesystem,
// one directory per file id
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// LocalStorageConfig for local storage
type LocalStorageConfig struct {
	BasePath string // Base directory for uploads (e.g., "/var/lib/coding-service")
}

// FileMetadata describes a stored upload
type FileMetadata struct {
	ID           string
	OriginalName string
	StoredPath   string
	Size         int64
	Hash         string
	ContentType  string
	CreatedAt    time.Time
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg *LocalStorageConfig, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		logger:   logger,
	}, nil
}

// SaveUpload stores an uploaded file under its id and returns metadata
func (s *LocalStorage) SaveUpload(ctx context.Context, fileID string, filename string, reader io.Reader) (*FileMetadata, error) {
	uploadDir := filepath.Join(s.basePath, "uploads", fileID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	safeName := filepath.Base(filename)
	destPath := filepath.Join(uploadDir, safeName)

	destFile, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(destFile, hash), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}

	fileHash := hex.EncodeToString(hash.Sum(nil))

	s.logger.Info("file uploaded",
		slog.String("file_id", fileID),
		slog.String("filename", filename),
		slog.Int64("size", size))

	return &FileMetadata{
		ID:           fileID,
		OriginalName: filename,
		StoredPath:   destPath,
		Size:         size,
		Hash:         fileHash,
		ContentType:  getContentType(filename),
		CreatedAt:    time.Now(),
	}, nil
}

// FindUpload locates the stored file for an id. Each upload directory
// holds exactly one file, so the id alone is enough.
func (s *LocalStorage) FindUpload(ctx context.Context, fileID string) (string, error) {
	uploadDir := filepath.Join(s.basePath, "uploads", fileID)

	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", os.ErrNotExist
		}
		return "", fmt.Errorf("failed to read upload directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			return filepath.Join(uploadDir, entry.Name()), nil
		}
	}
	return "", os.ErrNotExist
}

// GetUpload opens a stored file by id
func (s *LocalStorage) GetUpload(ctx context.Context, fileID string) (io.ReadCloser, error) {
	path, err := s.FindUpload(ctx, fileID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// DeleteUpload removes the upload directory for an id
func (s *LocalStorage) DeleteUpload(ctx context.Context, fileID string) error {
	uploadDir := filepath.Join(s.basePath, "uploads", fileID)
	if err := os.RemoveAll(uploadDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}

	s.logger.Info("upload deleted", slog.String("file_id", fileID))
	return nil
}

// CleanupOldFiles removes uploads older than the given duration
func (s *LocalStorage) CleanupOldFiles(ctx context.Context, olderThan time.Duration) error {
	cutoffTime := time.Now().Add(-olderThan)

	uploadsDir := filepath.Join(s.basePath, "uploads")
	entries, err := os.ReadDir(uploadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to cleanup uploads: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(uploadsDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to get file info",
				slog.String("path", dirPath),
				slog.Any("error", err))
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			if err := os.RemoveAll(dirPath); err != nil {
				s.logger.Warn("failed to remove directory",
					slog.String("path", dirPath),
					slog.Any("error", err))
			} else {
				s.logger.Debug("removed old upload",
					slog.String("path", dirPath),
					slog.Time("mod_time", info.ModTime()))
			}
		}
	}

	s.logger.Info("cleanup completed", slog.Duration("older_than", olderThan))
	return nil
}

// getContentType returns the content type based on file extension
func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
