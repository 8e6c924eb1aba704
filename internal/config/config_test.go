package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "storage:\n  driver: memory\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, int32(10), c.Postgres.MaxConns)
	assert.Equal(t, 256, c.Notify.QueueSize)
	assert.True(t, c.Metrics.Enabled)
	assert.False(t, c.Telegram.Enabled)
	assert.Equal(t, "admin", c.Admin.Username)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
app:
  env: prod
http:
  addr: ":9000"
postgres:
  dsn: postgres://file
telegram:
  admin_chat_id: 55
`)
	t.Setenv("STOCKDESK_POSTGRES_DSN", "postgres://env")
	t.Setenv("STOCKDESK_HTTP_ADDR", ":7000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", c.App.Env)
	assert.Equal(t, "postgres://env", c.Postgres.DSN)
	assert.Equal(t, ":7000", c.HTTP.Addr)
	assert.Equal(t, int64(55), c.Telegram.AdminChatID)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOCKDESK_STORAGE_DRIVER", "memory")

	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STOCKDESK_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("STOCKDESK_STORAGE_DRIVER", "memory")
	// gotenv.Load sets the variable in the process; make sure it is reset afterwards.
	t.Setenv("STOCKDESK_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("STOCKDESK_LOG_LEVEL"))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := map[string]string{
		"postgres without dsn": "storage:\n  driver: postgres\n",
		"unknown driver":       "storage:\n  driver: sqlite\n",
		"telegram no token":    "storage:\n  driver: memory\ntelegram:\n  enabled: true\n",
		"blank admin":          "storage:\n  driver: memory\nadmin:\n  username: \" \"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
