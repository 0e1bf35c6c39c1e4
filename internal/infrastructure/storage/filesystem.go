package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bravo68web/gitsshd/internal/domain/service"
)

// FilesystemStorage implements the StorageService interface for local filesystem
type FilesystemStorage struct {
	basePath string
}

// NewFilesystemStorage creates a new filesystem storage instance
func NewFilesystemStorage(basePath string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &FilesystemStorage{
		basePath: absPath,
	}, nil
}

// GetRepoPath returns the full path for a repository given owner and repo name
func (s *FilesystemStorage) GetRepoPath(owner, repoName string) string {
	return filepath.Join(s.basePath, owner, repoName+".git")
}

// GetBasePath returns the base storage path
func (s *FilesystemStorage) GetBasePath() string {
	return s.basePath
}

// Resolve returns absolute paths unchanged and joins relative ones onto the base path
func (s *FilesystemStorage) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.basePath, path)
}

// Exists checks if a path exists in the storage
func (s *FilesystemStorage) Exists(path string) (bool, error) {
	_, err := os.Stat(s.Resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check path existence: %w", err)
	}
	return true, nil
}

// IsDir checks if the path is a directory
func (s *FilesystemStorage) IsDir(path string) (bool, error) {
	info, err := os.Stat(s.Resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat path: %w", err)
	}
	return info.IsDir(), nil
}

var _ service.StorageService = (*FilesystemStorage)(nil)
