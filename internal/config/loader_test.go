package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
history:
  enabled: false
servers:
  - slug: web1
    host: web1.example.com
    user: deploy
    password: secret
  - slug: db
    host: db.example.com
    port: 2222
    user: postgres
    private_key_path: ~/.ssh/id_db
    timeout: 5s
`)

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.History.Enabled)

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "web1", cfg.Servers[0].Slug)
	assert.Equal(t, 0, cfg.Servers[0].Port) // default applied at dial time
	assert.Equal(t, "db", cfg.Servers[1].Slug)
	assert.Equal(t, 2222, cfg.Servers[1].Port)
	assert.Equal(t, 5*time.Second, cfg.Servers[1].Timeout)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_db"), cfg.Servers[1].PrivateKeyPath)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
servers:
  - slug: web1
    host: web1.example.com
    user: deploy
    password: secret
`)

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 1000, cfg.History.MaxEntries)
	assert.NotEmpty(t, cfg.History.Path)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `
servers:
  - slug: web1
    host: web1.example.com
    user: deploy
`)

	loader := NewLoader()
	loader.SetConfigFile(path)
	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file")
}
