package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSecrets map[string]string

func (m mapSecrets) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	v, ok := m[path+"#"+key]
	if !ok {
		return "", fmt.Errorf("no secret %s#%s", path, key)
	}
	return v, nil
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", fileName), []byte(body), 0o644))
	t.Setenv(envPrefix+"ROOT", root)
	return root
}

func stubSecrets(t *testing.T, m mapSecrets) {
	t.Helper()
	prev := newSecretSource
	newSecretSource = func(context.Context) (SecretSource, error) { return m, nil }
	t.Cleanup(func() { newSecretSource = prev })
}

func TestLoad_DefaultsYAMLAndEnv(t *testing.T) {
	root := writeYAML(t, `
database:
  driver: memory
objectstore:
  driver: memory
auth:
  host_cache_ttl: 0s
`)
	t.Setenv("SITECONF_HTTP__LISTEN_ADDR", "127.0.0.1:9090")
	t.Setenv("SITECONF_AUTH__INVITATION_MODE", "table")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Paths.Root)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, "table", cfg.Auth.InvitationMode)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTTL)
	assert.Equal(t, "siteconf_session", cfg.Auth.CookieName)
	assert.Zero(t, cfg.Auth.HostCacheTTL)
	assert.Same(t, cfg, Get())
}

func TestLoad_ResolvesVaultValues(t *testing.T) {
	writeYAML(t, `
database:
  driver: mysql
  dsn: "vault:secret/siteconf/db#dsn"
objectstore:
  driver: memory
`)
	stubSecrets(t, mapSecrets{"secret/siteconf/db#dsn": "u:p@tcp(db:3306)/siteconf"})

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/siteconf", cfg.Database.DSN)
}

func TestLoad_VaultMissWrapsKey(t *testing.T) {
	writeYAML(t, `
database:
  driver: mysql
  dsn: "vault:secret/siteconf/db#dsn"
objectstore:
  driver: memory
`)
	stubSecrets(t, mapSecrets{})

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestLoad_ValidationFails(t *testing.T) {
	writeYAML(t, `
database:
  driver: oracle
objectstore:
  driver: memory
`)
	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Database.Driver")
}

func TestSplitRef(t *testing.T) {
	p, k, err := splitRef("secret/siteconf/db#password")
	require.NoError(t, err)
	assert.Equal(t, "secret/siteconf/db", p)
	assert.Equal(t, "password", k)

	for _, bad := range []string{"", "#k", "secret/x#", "secret/x"} {
		_, _, err := splitRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "auth.session_ttl", envKey("SITECONF_AUTH__SESSION_TTL"))
	assert.Equal(t, "http.listen_addr", envKey("SITECONF_HTTP__LISTEN_ADDR"))
}
