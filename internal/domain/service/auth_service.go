package service

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// Permission extension keys carried on an authenticated SSH connection
const (
	ExtUserID   = "user_id"
	ExtUsername = "username"
	ExtKeyID    = "key_id"
	ExtIsAdmin  = "is_admin"
)

// PublicKeyAuthenticator decides whether an offered SSH public key belongs to the
// named user. On success the returned permissions carry the identity as extensions.
// Authenticate has no side effects: the SSH layer consults it before the client has
// proven possession of the private key.
type PublicKeyAuthenticator interface {
	Authenticate(ctx context.Context, username string, key ssh.PublicKey) (*ssh.Permissions, error)
	// MarkUsed records a completed login with the key in the background
	MarkUsed(keyID string)
}
