package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/internal/domain/repository"
	apperror "github.com/bravo68web/gitsshd/pkg/errors"
)

// SSHKeyRepoImpl implements the SSHKeyRepository interface using GORM
type SSHKeyRepoImpl struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSSHKeyRepository creates a new SSHKeyRepoImpl instance
func NewSSHKeyRepository(db *gorm.DB) repository.SSHKeyRepository {
	return &SSHKeyRepoImpl{db: db, now: time.Now}
}

// Create creates a new SSH key in the database
func (r *SSHKeyRepoImpl) Create(ctx context.Context, key *models.SSHKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return apperror.DatabaseError("create ssh key", err)
	}
	return nil
}

// FindActiveByUserID retrieves all active SSH keys for a user, oldest first
func (r *SSHKeyRepoImpl) FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*models.SSHKey, error) {
	var keys []*models.SSHKey
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at ASC").
		Find(&keys).Error
	if err != nil {
		return nil, apperror.DatabaseError("find active ssh keys by user id", err)
	}
	return keys, nil
}

// UpdateLastUsed updates the last_used_at timestamp for an SSH key
func (r *SSHKeyRepoImpl) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.SSHKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", r.now())
	if result.Error != nil {
		return apperror.DatabaseError("update ssh key last used", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("ssh key", apperror.ErrNotFound)
	}
	return nil
}

var _ repository.SSHKeyRepository = (*SSHKeyRepoImpl)(nil)
