package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/bravo68web/gitsshd/internal/domain/models"
)

// SSHKeyRepository defines the interface for SSH key data access operations
type SSHKeyRepository interface {
	// Create creates a new SSH key in the database
	Create(ctx context.Context, key *models.SSHKey) error

	// FindActiveByUserID retrieves the keys of a user that are allowed to authenticate
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*models.SSHKey, error)

	// UpdateLastUsed updates the last_used_at timestamp for an SSH key
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
}
