package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/bravo68web/gitsshd/internal/domain/models"
)

// UserRepository defines the interface for user data access operations
type UserRepository interface {
	// Create creates a new user in the database
	Create(ctx context.Context, user *models.User) error

	// FindByID retrieves a user by their ID
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// FindByUsername retrieves a user by exact username match
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}
