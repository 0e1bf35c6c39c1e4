package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/internal/domain/repository"
	"github.com/bravo68web/gitsshd/internal/domain/service"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
)

// RepoService resolves repositories for the SSH gateway. It never mutates them.
type RepoService struct {
	repoRepo repository.RepoRepository
	storage  service.StorageService
}

// NewRepoService creates a new RepoService instance
func NewRepoService(
	repoRepo repository.RepoRepository,
	storage service.StorageService,
) *RepoService {
	return &RepoService{
		repoRepo: repoRepo,
		storage:  storage,
	}
}

// Get retrieves a repository by owner username and name
func (s *RepoService) Get(ctx context.Context, owner, name string) (*models.Repository, error) {
	if owner == "" || name == "" {
		return nil, apperrors.NotFound("repository", apperrors.ErrNotFound)
	}
	return s.repoRepo.FindByOwnerUsernameAndName(ctx, owner, name)
}

// GetRepositoryPath returns the absolute storage path of a repository.
// Records without a git path fall back to <base>/<owner>/<name>.git.
func (s *RepoService) GetRepositoryPath(ctx context.Context, id uuid.UUID) (string, error) {
	repo, err := s.repoRepo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}

	if repo.GitPath == "" {
		if repo.Owner.Username == "" {
			return "", apperrors.StorageError("resolve repository path", apperrors.ErrRepositoryPathMissing)
		}
		return s.storage.GetRepoPath(repo.Owner.Username, repo.Name), nil
	}

	return s.storage.Resolve(repo.GitPath), nil
}

var _ service.RepositoryService = (*RepoService)(nil)
