package service

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/bravo68web/gitsshd/internal/domain/models"
	"github.com/bravo68web/gitsshd/internal/domain/repository"
	"github.com/bravo68web/gitsshd/internal/domain/service"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

const lastUsedUpdateTimeout = 5 * time.Second

// AuthServiceImpl authenticates SSH connections against the users' active keys
type AuthServiceImpl struct {
	userRepo   repository.UserRepository
	sshKeyRepo repository.SSHKeyRepository
	log        *logger.Logger
}

// NewAuthService creates a new AuthServiceImpl instance
func NewAuthService(
	userRepo repository.UserRepository,
	sshKeyRepo repository.SSHKeyRepository,
	log *logger.Logger,
) *AuthServiceImpl {
	if log == nil {
		log = logger.Get()
	}
	return &AuthServiceImpl{
		userRepo:   userRepo,
		sshKeyRepo: sshKeyRepo,
		log:        log.WithFields(logger.Component("ssh-auth")),
	}
}

// Authenticate matches the offered key against the active keys of username.
// Every failure returns the same error so callers cannot tell an unknown user
// from a wrong key; the reason is logged.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, username string, key ssh.PublicKey) (*ssh.Permissions, error) {
	fingerprint := ssh.FingerprintSHA256(key)
	log := s.log.WithContext(ctx).WithFields(
		logger.Username(username),
		logger.Fingerprint(fingerprint),
	)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if apperrors.IsNotFound(err) {
			log.Info("SSH authentication rejected: unknown user")
		} else {
			log.Error("SSH authentication rejected: user lookup failed", logger.Error(err))
		}
		return nil, apperrors.ErrAuthenticationFailed
	}

	keys, err := s.sshKeyRepo.FindActiveByUserID(ctx, user.ID)
	if err != nil {
		log.Error("SSH authentication rejected: key lookup failed", logger.Error(err))
		return nil, apperrors.ErrAuthenticationFailed
	}

	matched := s.matchKey(log, key, keys)
	if matched == nil {
		log.Info("SSH authentication rejected: no matching active key",
			logger.Int("active_keys", len(keys)),
		)
		return nil, apperrors.ErrAuthenticationFailed
	}

	log.Debug("SSH authentication succeeded",
		logger.UserID(user.ID.String()),
		logger.KeyID(matched.ID.String()),
	)

	return &ssh.Permissions{
		Extensions: map[string]string{
			service.ExtUserID:   user.ID.String(),
			service.ExtUsername: user.Username,
			service.ExtKeyID:    matched.ID.String(),
			service.ExtIsAdmin:  strconv.FormatBool(user.IsAdmin),
		},
	}, nil
}

// matchKey returns the first stored key whose wire encoding equals the offered one.
// Stored keys that fail to parse are skipped.
func (s *AuthServiceImpl) matchKey(log *logger.Logger, offered ssh.PublicKey, keys []*models.SSHKey) *models.SSHKey {
	want := offered.Marshal()

	for _, k := range keys {
		stored, _, _, _, err := ssh.ParseAuthorizedKey([]byte(k.PublicKey))
		if err != nil {
			log.Warn("Skipping unparsable stored SSH key",
				logger.KeyID(k.ID.String()),
				logger.Error(err),
			)
			continue
		}
		if bytes.Equal(want, stored.Marshal()) {
			return k
		}
	}

	return nil
}

// MarkUsed updates the key's last used time in the background. It is called once the
// handshake has verified the client's signature; failures are only logged.
func (s *AuthServiceImpl) MarkUsed(keyID string) {
	log := s.log.WithFields(logger.KeyID(keyID))

	id, err := uuid.Parse(keyID)
	if err != nil {
		log.Warn("Not recording SSH key usage: invalid key id", logger.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedUpdateTimeout)
		defer cancel()

		if err := s.sshKeyRepo.UpdateLastUsed(ctx, id); err != nil {
			log.Warn("Failed to update SSH key last used time", logger.Error(err))
		}
	}()
}

// Verify interface compliance at compile time
var _ service.PublicKeyAuthenticator = (*AuthServiceImpl)(nil)
