package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 5000, cfg.HTTPPort)
	assert.Equal(t, 0.1, cfg.Threshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "http", cfg.Transport)
	assert.Empty(t, cfg.CorpusFile)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MEDMAP_DATA_DIR", "/tmp/test-medmap")
	t.Setenv("MEDMAP_CORPUS_FILE", "/tmp/corpus.yaml")
	t.Setenv("MEDMAP_CACHE_MAX_ITEMS", "500")
	t.Setenv("MEDMAP_CACHE_TTL", "12h")
	t.Setenv("MEDMAP_TRANSPORT", "stdio")
	t.Setenv("MEDMAP_HTTP_PORT", "9090")
	t.Setenv("MEDMAP_THRESHOLD", "0.25")
	t.Setenv("MEDMAP_MAX_CANDIDATES", "3")
	t.Setenv("MEDMAP_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-medmap", cfg.DataDir)
	assert.Equal(t, "/tmp/corpus.yaml", cfg.CorpusFile)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 0.25, cfg.Threshold)
	assert.Equal(t, 3, cfg.MaxCandidates)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_InvalidValuesIgnored(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MEDMAP_CACHE_MAX_ITEMS", "-5")
	t.Setenv("MEDMAP_HTTP_PORT", "not-a-port")
	t.Setenv("MEDMAP_THRESHOLD", "1.5")
	t.Setenv("MEDMAP_MAX_CANDIDATES", "-1")
	t.Setenv("MEDMAP_CACHE_TTL", "soon")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 5000, cfg.HTTPPort)
	assert.Equal(t, 0.1, cfg.Threshold)
	assert.Equal(t, 0, cfg.MaxCandidates)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
}

func TestLoadLiteConfig_DotEnv(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MEDMAP_HTTP_PORT=7070\nMEDMAP_LOG_FORMAT=text\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("MEDMAP_HTTP_PORT")
		os.Unsetenv("MEDMAP_LOG_FORMAT")
	})

	cfg := LoadLiteConfig()

	assert.Equal(t, 7070, cfg.HTTPPort)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLiteConfig_DBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.medmap"}

	assert.Equal(t, "/home/user/.medmap/medmap.db", cfg.DBPath())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "medmap")}

	require.NoError(t, cfg.EnsureDataDir())

	_, err := os.Stat(cfg.DataDir)
	assert.NoError(t, err)
}

func TestLiteConfig_ToConfig(t *testing.T) {
	lite := DefaultLiteConfig()
	lite.Threshold = 0.2
	lite.MaxCandidates = 3

	cfg := lite.ToConfig()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 0.2, cfg.Diagnosis.Threshold)
	assert.Equal(t, 3, cfg.Diagnosis.MaxCandidates)
	assert.Equal(t, domain.PersistFailOpen, cfg.Diagnosis.PersistMode)
	assert.Equal(t, 2.0, cfg.Outbreak.Multiplier)
	assert.Equal(t, 7*24*time.Hour, cfg.Outbreak.Window)
	assert.Equal(t, 1000.0, cfg.Clusters.BandWidth)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.True(t, cfg.Cache.Enabled)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"MEDMAP_DATA_DIR",
		"MEDMAP_CORPUS_FILE",
		"MEDMAP_CACHE_MAX_ITEMS",
		"MEDMAP_CACHE_TTL",
		"MEDMAP_TRANSPORT",
		"MEDMAP_HTTP_PORT",
		"MEDMAP_THRESHOLD",
		"MEDMAP_MAX_CANDIDATES",
		"MEDMAP_LOG_LEVEL",
		"MEDMAP_LOG_FORMAT",
	}
	for _, v := range vars {
		// t.Setenv restores the previous value after the test.
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
