package service

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/internal/infrastructure/storage"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
)

func TestRepoService(t *testing.T) {
	store, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	alice := models.User{ID: uuid.New(), Username: "alice"}
	relative := &models.Repository{ID: uuid.New(), Name: "demo", OwnerID: alice.ID, Owner: alice, GitPath: "alice/demo.git"}
	absolute := &models.Repository{ID: uuid.New(), Name: "abs", OwnerID: alice.ID, Owner: alice, GitPath: "/srv/git/abs.git"}
	implicit := &models.Repository{ID: uuid.New(), Name: "implicit", OwnerID: alice.ID, Owner: alice}

	repos := &fakeRepoRepo{repos: []*models.Repository{relative, absolute, implicit}}
	svc := NewRepoService(repos, store)

	t.Run("get", func(t *testing.T) {
		repo, err := svc.Get(t.Context(), "alice", "demo")
		require.NoError(t, err)
		assert.Equal(t, relative.ID, repo.ID)

		_, err = svc.Get(t.Context(), "alice", "missing")
		assert.True(t, apperrors.IsNotFound(err))

		_, err = svc.Get(t.Context(), "", "demo")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("relative path resolves under base", func(t *testing.T) {
		path, err := svc.GetRepositoryPath(t.Context(), relative.ID)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(store.GetBasePath(), "alice", "demo.git"), path)
	})

	t.Run("absolute path kept", func(t *testing.T) {
		path, err := svc.GetRepositoryPath(t.Context(), absolute.ID)
		require.NoError(t, err)
		assert.Equal(t, "/srv/git/abs.git", path)
	})

	t.Run("empty path uses owner layout", func(t *testing.T) {
		path, err := svc.GetRepositoryPath(t.Context(), implicit.ID)
		require.NoError(t, err)
		assert.Equal(t, store.GetRepoPath("alice", "implicit"), path)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.GetRepositoryPath(t.Context(), uuid.New())
		assert.True(t, apperrors.IsNotFound(err))
	})
}
