// Package auth hashes local-account passwords and issues the PASETO bearer
// tokens that identify a session.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// KeySize is the PASETO v4 symmetric key size in bytes.
const KeySize = 32

const keyFileName = "auth.key"

// LoadOrGenerateKey returns the token key stored hex-encoded in
// <dir>/auth.key, creating the file with a fresh random key on first use.
func LoadOrGenerateKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, keyFileName)

	//#nosec G304 -- path is derived from the configured data directory
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		return ParseKey(strings.TrimSpace(string(raw)))
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read auth key: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate auth key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("save auth key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a hex-encoded token key.
func ParseKey(keyHex string) ([]byte, error) {
	if len(keyHex) != KeySize*2 {
		return nil, fmt.Errorf("auth key must be %d hex characters, got %d", KeySize*2, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("auth key is not valid hex: %w", err)
	}
	return key, nil
}
