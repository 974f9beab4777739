package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	t.Setenv("CONFIG_FILE", "")
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
	assert.Nil(t, cfg)
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/retail?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 1000, cfg.Pipeline.InsertChunkSize)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.LockTTL)
	assert.Equal(t, 10, cfg.Pipeline.TopN)
	assert.Equal(t, []string{"S", "D", "BANK CHARGES", "CRUK", "M", "AMAZONFEE"}, cfg.Pipeline.NonProductCodes)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, 80.0, cfg.Dashboard.CompletenessThreshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "retail.yaml")
	yaml := `
database:
  url: postgres://file/retail
pipeline:
  top_n: 5
  non_product_codes: [POST, DOT]
dashboard:
  cache_ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PIPELINE_TOP_N", "20")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/retail", cfg.Database.URL)
	assert.Equal(t, 20, cfg.Pipeline.TopN)
	assert.Equal(t, []string{"POST", "DOT"}, cfg.Pipeline.NonProductCodes)
	assert.Equal(t, time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_RejectsBadThreshold(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/retail")
	t.Setenv("DASHBOARD_COMPLETENESS_THRESHOLD", "150")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ChunkSizeBounds(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/retail")

	t.Setenv("PIPELINE_INSERT_CHUNK_SIZE", "4369")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MaxInsertChunkSize, cfg.Pipeline.InsertChunkSize)

	t.Setenv("PIPELINE_INSERT_CHUNK_SIZE", "4370")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("PIPELINE_INSERT_CHUNK_SIZE", "0")
	_, err = Load()
	assert.Error(t, err)
}
