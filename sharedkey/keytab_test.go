// SPDX-License-Identifier: Apache-2.0
package sharedkey

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	negotiate "github.com/golang-auth/go-negotiate"
)

func writeKeytab(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keytab.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadKeytab(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("alice-shared-secret-0123456789ab"))
	path := writeKeytab(t, `
default-principal = "alice"

[keys]
alice = "`+secret+`"
"host/files.example.com" = "`+secret+`"
`)

	kt, def, err := LoadKeytab(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", def)
	assert.Len(t, kt, 2)

	key, ok := kt.Key("alice")
	assert.True(t, ok)
	assert.Equal(t, []byte("alice-shared-secret-0123456789ab"), key)

	_, ok = kt.Key("mallory")
	assert.False(t, ok)
}

func TestLoadKeytabBadKey(t *testing.T) {
	path := writeKeytab(t, `
[keys]
alice = "not-base64!!"
`)
	_, _, err := LoadKeytab(path)
	assert.Error(t, err)
}

func TestLoadKeytabDanglingDefault(t *testing.T) {
	path := writeKeytab(t, `
default-principal = "bob"

[keys]
alice = "c2VjcmV0"
`)
	_, _, err := LoadKeytab(path)
	assert.Error(t, err)
}

func TestRegistryConstruction(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("alice-shared-secret-0123456789ab"))
	path := writeKeytab(t, `
default-principal = "alice"

[keys]
alice = "`+secret+`"
`)

	t.Setenv(KeytabEnv, path)
	e, err := negotiate.NewEngine(EngineName)
	require.NoError(t, err)
	assert.Equal(t, EngineName, e.Name())

	t.Setenv(KeytabEnv, "")
	_, err = negotiate.NewEngine(EngineName)
	assert.ErrorIs(t, err, negotiate.ErrUnknownCredentials)
}
