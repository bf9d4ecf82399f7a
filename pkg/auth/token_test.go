package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSaveGetDelete_Keychain(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvToken, "")
	dir := t.TempDir()

	src, err := SaveToken(dir, " secret\n")
	require.NoError(t, err)
	assert.Equal(t, SourceKeychain, src)

	token, src, err := GetToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
	assert.Equal(t, SourceKeychain, src)

	require.NoError(t, DeleteToken(dir))
	_, _, err = GetToken(dir)
	assert.ErrorIs(t, err, ErrNoToken)

	// deleting twice is fine
	assert.NoError(t, DeleteToken(dir))
}

func TestGetToken_EnvOverride(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()

	_, err := SaveToken(dir, "stored")
	require.NoError(t, err)

	t.Setenv(EnvToken, "from-env")
	token, src, err := GetToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)
	assert.Equal(t, SourceEnv, src)
}

func TestSaveToken_FileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))
	t.Setenv(EnvToken, "")
	dir := filepath.Join(t.TempDir(), "state")

	src, err := SaveToken(dir, "secret")
	require.NoError(t, err)
	assert.Equal(t, SourceFile, src)

	info, err := os.Stat(tokenPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(tokenFileMode), info.Mode().Perm())

	token, src, err := GetToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
	assert.Equal(t, SourceFile, src)

	require.NoError(t, DeleteToken(dir))
	_, err = os.Stat(tokenPath(dir))
	assert.True(t, os.IsNotExist(err))
}

func TestGetToken_MigratesFile(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvToken, "")
	dir := t.TempDir()
	require.NoError(t, saveTokenFile(dir, "legacy"))

	token, src, err := GetToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "legacy", token)
	assert.Equal(t, SourceKeychain, src)

	_, err = os.Stat(tokenPath(dir))
	assert.True(t, os.IsNotExist(err))

	stored, err := keyring.Get(keyringService, keyringUser)
	require.NoError(t, err)
	assert.Equal(t, "legacy", stored)
}

func TestSaveToken_Empty(t *testing.T) {
	keyring.MockInit()
	_, err := SaveToken(t.TempDir(), "  ")
	assert.Error(t, err)
}
