package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"

	"github.com/bravo68web/gitsshd/internal/config"
	apperrors "github.com/bravo68web/gitsshd/pkg/errors"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

const hostKeyBits = 2048

// LoadOrGenerateHostKey returns the server identity stored at path. A missing or
// unreadable key is replaced by a fresh RSA key which is persisted with mode 0600.
// Persisting is best effort: on failure the in-memory key is still returned.
func LoadOrGenerateHostKey(path string, log *logger.Logger) (gossh.Signer, error) {
	if path == "" {
		path = config.DefaultHostKeyPath
	}
	if log == nil {
		log = logger.Get()
	}
	log = log.WithFields(logger.Component("host-key"), logger.String("path", path))

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		signer, perr := gossh.ParsePrivateKey(data)
		if perr == nil {
			log.Info("Loaded SSH host key", logger.Fingerprint(gossh.FingerprintSHA256(signer.PublicKey())))
			return signer, nil
		}
		log.Warn("Failed to parse SSH host key, generating a new one", logger.Error(perr))
	case os.IsNotExist(err):
		log.Info("SSH host key not found, generating a new one")
	default:
		log.Warn("Failed to read SSH host key, generating a new one", logger.Error(err))
	}

	key, err := rsa.GenerateKey(rand.Reader, hostKeyBits)
	if err != nil {
		return nil, apperrors.HostKeyError("generate", err)
	}

	signer, err := gossh.NewSignerFromKey(key)
	if err != nil {
		return nil, apperrors.HostKeyError("create signer", err)
	}

	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := writeHostKey(path, pem.EncodeToMemory(block)); err != nil {
		log.Warn("Failed to persist SSH host key; the server identity will change on restart",
			logger.Error(err),
		)
	} else {
		log.Info("Generated SSH host key", logger.Fingerprint(gossh.FingerprintSHA256(signer.PublicKey())))
	}

	return signer, nil
}

// writeHostKey writes data to a temp file in the same directory and renames it over path
func writeHostKey(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".host_key-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename key file: %w", err)
	}
	return nil
}
