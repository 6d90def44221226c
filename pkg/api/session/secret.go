// Package session provides the signing-secret bootstrap and the signed
// flash-notice cookie carried across redirects.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/webauthd/internal/logger"
)

// secretBytes is the length of a freshly generated signing secret.
const secretBytes = 32

// LoadOrCreateSecret returns the signing secret stored at path, generating
// and persisting a new random one when the file does not exist. The secret
// survives restarts so outstanding flash cookies stay verifiable.
func LoadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret := []byte(strings.TrimSpace(string(data)))
		if len(secret) < secretBytes {
			return nil, fmt.Errorf("signing secret at %s is too short (%d bytes)", path, len(secret))
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read signing secret: %w", err)
	}

	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	secret := []byte(hex.EncodeToString(raw))

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("failed to write signing secret: %w", err)
	}

	logger.Info("generated new session signing secret", "path", path)
	return secret, nil
}
