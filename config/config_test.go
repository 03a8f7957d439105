package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  debug: true\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, time.Hour, cfg.Database.MaxLife)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalGCInterval)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.Equal(t, 60, cfg.Game.SaveIntervalS)
	assert.Equal(t, 900, cfg.Game.IdleEvictS)
	assert.Equal(t, 30*time.Second, cfg.Game.LockTTL)
	assert.Equal(t, "./data/catalog", cfg.Catalog.DataPath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  mode: postgres
  postgres_dsn: "host=db user=mtga"
server:
  admin_ips: ["127.0.0.1", "10.0.0.0/8"]
game:
  lock_ttl: 5s
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Mode)
	assert.Equal(t, "host=db user=mtga", cfg.Database.PostgresDSN)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.0/8"}, cfg.Server.AdminIPs)
	assert.Equal(t, 5*time.Second, cfg.Game.LockTTL)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("MTGA_SERVER_PORT", "9090")
	t.Setenv("MTGA_SECURITY_JWT_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, "server:\n  port: 7000\n"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
