package injectable

import (
	"fmt"

	"github.com/bravo68web/gitsshd/internal/application/service"
	"github.com/bravo68web/gitsshd/internal/config"
	domainservice "github.com/bravo68web/gitsshd/internal/domain/service"
	"github.com/bravo68web/gitsshd/internal/infrastructure/database"
	"github.com/bravo68web/gitsshd/internal/infrastructure/git"
	"github.com/bravo68web/gitsshd/internal/infrastructure/repository"
	"github.com/bravo68web/gitsshd/internal/infrastructure/storage"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

// Dependencies holds the collaborators of the SSH server
type Dependencies struct {
	Authenticator domainservice.PublicKeyAuthenticator
	RepoService   domainservice.RepositoryService
	GitShell      domainservice.GitShellService
	Storage       domainservice.StorageService
}

// LoadDependencies wires repositories, storage and services on top of db
func LoadDependencies(cfg *config.Config, db *database.Database, log *logger.Logger) (Dependencies, error) {
	userRepo := repository.NewUserRepository(db.DB())
	repoRepo := repository.NewRepoRepository(db.DB())
	sshKeyRepo := repository.NewSSHKeyRepository(db.DB())

	storageService, err := storage.NewFactory(&cfg.Storage).Create()
	if err != nil {
		return Dependencies{}, fmt.Errorf("failed to initialize storage service: %w", err)
	}

	return Dependencies{
		Authenticator: service.NewAuthService(userRepo, sshKeyRepo, log),
		RepoService:   service.NewRepoService(repoRepo, storageService),
		GitShell:      git.NewShell(log),
		Storage:       storageService,
	}, nil
}
