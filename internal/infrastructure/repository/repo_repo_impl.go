package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/internal/domain/repository"
	apperror "github.com/bravo68web/gitsshd/pkg/errors"
)

// RepoRepoImpl implements the RepoRepository interface using GORM
type RepoRepoImpl struct {
	db *gorm.DB
}

// NewRepoRepository creates a new instance of RepoRepoImpl
func NewRepoRepository(db *gorm.DB) repository.RepoRepository {
	return &RepoRepoImpl{db: db}
}

// Create creates a new repository in the database
func (r *RepoRepoImpl) Create(ctx context.Context, repo *models.Repository) error {
	if err := r.db.WithContext(ctx).Create(repo).Error; err != nil {
		return apperror.DatabaseError("create repository", err)
	}
	return nil
}

// FindByID retrieves a repository by its ID
func (r *RepoRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	var repo models.Repository
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("repositories.id = ?", id).
		First(&repo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("repository", apperror.ErrNotFound)
		}
		return nil, apperror.DatabaseError("find repository by id", err)
	}
	return &repo, nil
}

// FindByOwnerUsernameAndName finds a repository by owner username and repository name
func (r *RepoRepoImpl) FindByOwnerUsernameAndName(ctx context.Context, username, name string) (*models.Repository, error) {
	var repo models.Repository
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Joins("JOIN users ON users.id = repositories.owner_id").
		Where("users.username = ? AND repositories.name = ?", username, name).
		First(&repo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("repository", apperror.ErrNotFound)
		}
		return nil, apperror.DatabaseError("find repository by owner and name", err)
	}
	return &repo, nil
}
