package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://realty.yandex.ru/ufa/kupit/kvartira/", cfg.Portal.SearchURL)
	assert.Equal(t, 20, cfg.Portal.TimeoutSecs)
	assert.InDelta(t, 0.5, cfg.Portal.RequestsPerSec, 0.001)
	assert.Equal(t, 25, cfg.Pipeline.MaxPages)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Retry.InitialBackoffMs)
	assert.InDelta(t, 0.25, cfg.Retry.JitterFraction, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "realty.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "listings", cfg.Export.KeyPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 54.50, cfg.Geo.MinLat, 0.001)
	assert.InDelta(t, 56.25, cfg.Geo.MaxLon, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
portal:
  search_url: https://realty.example.org/ufa/kupit/kvartira/
  timeout_secs: 5
pipeline:
  max_pages: 3
  concurrency: 2
store:
  driver: postgres
  database_url: postgres://localhost/realty
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://realty.example.org/ufa/kupit/kvartira/", cfg.Portal.SearchURL)
	assert.Equal(t, 5, cfg.Portal.TimeoutSecs)
	assert.Equal(t, 3, cfg.Pipeline.MaxPages)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}
