// Package auth keeps the credential used to fetch remote raw data.
package auth

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

const (
	// EnvToken overrides any stored token when set.
	EnvToken = "AGEPULSE_DATA_TOKEN"

	keyringService = "agepulse"
	keyringUser    = "data_token"
	tokenFileName  = "data_token"
	tokenFileMode  = 0600
)

// ErrNoToken is returned when no token is configured anywhere.
var ErrNoToken = errors.New("no data token configured")

// Source names where a token was found or stored.
type Source string

const (
	SourceEnv      Source = "env"
	SourceKeychain Source = "keychain"
	SourceFile     Source = "file"
)

// SaveToken stores token in the OS keychain. When the keychain is
// unavailable the token is written to a file under dir instead.
func SaveToken(dir, token string) (Source, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token is empty")
	}

	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		if err := saveTokenFile(dir, token); err != nil {
			return "", err
		}
		return SourceFile, nil
	}

	// a stale file would shadow nothing but should not linger
	_ = os.Remove(tokenPath(dir))
	return SourceKeychain, nil
}

// GetToken returns the data token. The environment wins over the keychain,
// and the keychain over the file. A token found only in the file is moved
// to the keychain when possible.
func GetToken(dir string) (string, Source, error) {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		return v, SourceEnv, nil
	}

	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, SourceKeychain, nil
	}

	token, err = getTokenFile(dir)
	if err != nil {
		return "", "", err
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		_ = os.Remove(tokenPath(dir))
		return token, SourceKeychain, nil
	}
	return token, SourceFile, nil
}

// DeleteToken removes the token from both the keychain and the file.
func DeleteToken(dir string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("error deleting keychain token", "error", err)
	}
	if err := os.Remove(tokenPath(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "error removing token file in: %s", dir)
	}
	return nil
}

func tokenPath(dir string) string {
	return filepath.Join(dir, tokenFileName)
}

func saveTokenFile(dir, token string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrapf(err, "error creating dir: %s", dir)
	}
	p := tokenPath(dir)
	if err := os.WriteFile(p, []byte(token), tokenFileMode); err != nil {
		return errors.Wrapf(err, "error writing token file: %s", p)
	}
	return nil
}

func getTokenFile(dir string) (string, error) {
	p := tokenPath(dir)
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", errors.Wrapf(err, "error reading token file: %s", p)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
