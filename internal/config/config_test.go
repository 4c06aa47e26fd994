package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(t.TempDir())
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4001/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Migration.PollInterval)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 4001, cfg.Server.HTTPPort)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `
api:
  base_url: https://studio.example.com/api/v1
  timeout: 5s
migration:
  poll_interval: 500ms
cache:
  backend: redis
  compression: lz4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName+".yaml"), []byte(content), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "https://studio.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Migration.PollInterval)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "lz4", cfg.Cache.Compression)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	v := newTestViper(t)
	v.Set("cache.backend", "memcached")

	_, err := Load(v)
	assert.ErrorContains(t, err, "cache.backend")
}

func TestSetupLogger(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	file := filepath.Join(t.TempDir(), "logs", "linksync.log")
	require.NoError(t, SetupLogger(LogConfig{Level: "debug", Format: "json", File: file}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	logrus.Info("hello")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	assert.Error(t, SetupLogger(LogConfig{Level: "loud"}))
}
