package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "asdscreen"
	keyringUser    = "api_token"
	tokenFileName  = "api_token"

	fileMode = 0600
)

// ErrNoToken means no token was saved with login.
var ErrNoToken = errors.New("no saved token, run login first")

// TokenStore keeps the client API token in the OS keychain, falling back to
// a file in Dir when no keychain is available.
type TokenStore struct {
	Dir string
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{Dir: dir}
}

func (s *TokenStore) path() string {
	return filepath.Join(s.Dir, tokenFileName)
}

// Save stores token, removing any file copy once the keychain accepts it.
func (s *TokenStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token required")
	}

	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return s.saveFile(token)
	}

	os.Remove(s.path())
	return nil
}

// Get returns the saved token. A token found only in the file is moved to
// the keychain when possible.
func (s *TokenStore) Get() (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	token, err = s.getFile()
	if err != nil {
		return "", err
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		os.Remove(s.path())
	}

	return token, nil
}

// Delete removes the token from both the keychain and the file.
func (s *TokenStore) Delete() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}

	if rmErr := os.Remove(s.path()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("removing token file %s: %w", s.path(), rmErr)
	}
	return nil
}

func (s *TokenStore) saveFile(token string) error {
	if err := os.WriteFile(s.path(), []byte(token), fileMode); err != nil {
		return fmt.Errorf("writing token file %s: %w", s.path(), err)
	}
	return nil
}

func (s *TokenStore) getFile() (string, error) {
	b, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", s.path(), err)
	}

	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
