package storage

import (
	"fmt"

	"github.com/bravo68web/gitsshd/internal/config"
	"github.com/bravo68web/gitsshd/internal/domain/service"
)

// Factory creates storage backends based on configuration
type Factory struct {
	config *config.StorageConfig
}

// NewFactory creates a new storage factory
func NewFactory(cfg *config.StorageConfig) *Factory {
	return &Factory{
		config: cfg,
	}
}

// Create creates the filesystem storage backend. Git needs a local working
// directory, so there is no remote backend.
func (f *Factory) Create() (service.StorageService, error) {
	if err := ValidateConfig(f.config); err != nil {
		return nil, err
	}
	return NewFilesystemStorage(f.config.BasePath)
}

// ValidateConfig validates the storage configuration
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil || cfg.BasePath == "" {
		return fmt.Errorf("base_path is required for filesystem storage")
	}
	return nil
}
