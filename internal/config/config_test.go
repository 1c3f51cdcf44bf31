package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmerrifield20/fellows/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Tokens.IdleLifespan)
	assert.Equal(t, 14*24*time.Hour, cfg.Tokens.ExpiringLifespan)
	assert.False(t, cfg.Tokens.EnforceIdle)
	assert.Equal(t, 10*time.Second, cfg.Identity.HTTPTimeout)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.False(t, cfg.Identity.Apple.Enabled())
	assert.Empty(t, cfg.Media.Bucket)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fellows.yaml")
	yaml := `
server:
  port: 9090
tokens:
  idle_lifespan: 30m
  enforce_idle: true
identity:
  google:
    client_ids: [android-id, ios-id, web-id]
  apple:
    team_id: TEAM
    key_id: KEY
    client_id: org.fellows.app
    private_key_path: /secrets/apple.p8
email:
  managers: [boss@example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 30*time.Minute, cfg.Tokens.IdleLifespan)
	assert.True(t, cfg.Tokens.EnforceIdle)
	assert.Equal(t, []string{"android-id", "ios-id", "web-id"}, cfg.Identity.Google.ClientIDs)
	assert.True(t, cfg.Identity.Apple.Enabled())
	assert.Equal(t, []string{"boss@example.com"}, cfg.Email.Managers)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "fellows.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "https://appleid.apple.com/auth/token", cfg.Identity.Apple.TokenURL)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
}
