package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
)

type fakeUserRepo struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperrors.NotFound("user", apperrors.ErrNotFound)
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user", apperrors.ErrNotFound)
}

type fakeSSHKeyRepo struct {
	mu       sync.Mutex
	keys     []*models.SSHKey
	lastUsed []uuid.UUID
}

func (f *fakeSSHKeyRepo) Create(_ context.Context, key *models.SSHKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeSSHKeyRepo) FindActiveByUserID(_ context.Context, userID uuid.UUID) ([]*models.SSHKey, error) {
	var out []*models.SSHKey
	for _, k := range f.keys {
		if k.UserID == userID && k.Active {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeSSHKeyRepo) UpdateLastUsed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUsed = append(f.lastUsed, id)
	return nil
}

func (f *fakeSSHKeyRepo) touched() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.lastUsed...)
}

type fakeRepoRepo struct {
	repos []*models.Repository
}

func (f *fakeRepoRepo) Create(_ context.Context, repo *models.Repository) error {
	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}
	f.repos = append(f.repos, repo)
	return nil
}

func (f *fakeRepoRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Repository, error) {
	for _, r := range f.repos {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NotFound("repository", apperrors.ErrNotFound)
}

func (f *fakeRepoRepo) FindByOwnerUsernameAndName(_ context.Context, username, name string) (*models.Repository, error) {
	for _, r := range f.repos {
		if r.Owner.Username == username && r.Name == name {
			return r, nil
		}
	}
	return nil, apperrors.NotFound("repository", apperrors.ErrNotFound)
}

func newEd25519Key(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}
