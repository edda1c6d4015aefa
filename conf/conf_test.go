package conf

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	config, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8090, config.APIServer.Port)
	require.Equal(t, "memvault", config.APIServer.Name)
	require.Equal(t, "sqlite3", config.Store.Dialect)
	require.Equal(t, "info", config.Log.Level)
	require.Equal(t, "memory", config.Cache.Mode)
	require.Equal(t, "*/10 * * * *", config.Maintenance.CRON)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yml := `
server:
  port: 9100
  request_timeout: 45s
  key_window:
    key_header: X-Custom-Key
store:
  dialect: postgres
  dsn: postgres://localhost/memvault
auth:
  secret_key: file-secret
maintenance:
  decay_half_life: 168h
`
	require.NoError(t, os.WriteFile(dir+"/memvault.yml", []byte(yml), 0o600))

	config, err := Load()
	require.NoError(t, err)

	require.Equal(t, 9100, config.APIServer.Port)
	require.Equal(t, 45*time.Second, config.APIServer.RequestTimeout)
	require.Equal(t, "X-Custom-Key", config.APIServer.KeyWindow.KeyHeader)
	require.Equal(t, "postgres", config.Store.Dialect)
	require.Equal(t, "file-secret", config.Auth.SecretKey)
	require.Equal(t, 168*time.Hour, config.Maintenance.DecayHalfLife)

	// Defaults still fill the gaps the file leaves open.
	require.Equal(t, "memvault", config.APIServer.Name)
	require.Equal(t, "info", config.Log.Level)
}
