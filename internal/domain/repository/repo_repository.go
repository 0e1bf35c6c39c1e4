package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/bravo68web/gitsshd/internal/domain/models"
)

// RepoRepository defines the interface for repository data access
type RepoRepository interface {
	// Create creates a new repository record
	Create(ctx context.Context, repo *models.Repository) error

	// FindByID finds a repository by its ID, owner preloaded
	FindByID(ctx context.Context, id uuid.UUID) (*models.Repository, error)

	// FindByOwnerUsernameAndName finds a repository by owner username and name
	FindByOwnerUsernameAndName(ctx context.Context, username, name string) (*models.Repository, error)
}
