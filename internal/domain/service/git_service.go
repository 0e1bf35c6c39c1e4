package service

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/bravo68web/gitsshd/internal/domain/models"
)

// Git transport commands accepted over SSH
const (
	GitUploadPack  = "git-upload-pack"
	GitReceivePack = "git-receive-pack"
)

// RepositoryService resolves logical owner/name pairs to stored repositories
type RepositoryService interface {
	// Get finds a repository by owner username and repository name
	Get(ctx context.Context, owner, name string) (*models.Repository, error)

	// GetRepositoryPath returns the absolute on-disk path of a repository
	GetRepositoryPath(ctx context.Context, id uuid.UUID) (string, error)
}

// GitShellService runs a git transport command against a repository with the
// given streams bound to the subprocess
type GitShellService interface {
	HandleGitCommand(ctx context.Context, command, repoPath string, stdin io.Reader, stdout, stderr io.Writer) error
}
