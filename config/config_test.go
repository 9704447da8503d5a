package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vegasq/pqprefetch/prefetch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pqprefetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, prefetch.DefaultConfig(), cfg.PrefetchConfig())
	require.Equal(t, int64(1<<20), cfg.Footer.TailLength)
	require.Equal(t, 45, cfg.Store.MetadataStoreSize)
	require.Equal(t, 30*time.Second, cfg.Physical.RequestTimeout)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
prefetch:
  mode: "off"
  cold_file_row_groups: 3
footer:
  tail_length: 65536
physical:
  max_concurrency: 2
  request_timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, prefetch.Config{Mode: prefetch.ModeOff, ColdFileRowGroups: 3}, cfg.PrefetchConfig())
	require.Equal(t, int64(65536), cfg.Footer.TailLength)
	require.Equal(t, 2, cfg.PhysicalConfig().MaxConcurrency)
	require.Equal(t, 5*time.Second, cfg.PhysicalConfig().RequestTimeout)

	// unset keys keep their defaults
	require.Equal(t, 45, cfg.Store.MetadataStoreSize)
	require.Equal(t, 1024, cfg.Physical.CacheEntries)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PQPREFETCH_PREFETCH_MODE", "off")
	t.Setenv("PQPREFETCH_STORE_METADATA_STORE_SIZE", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "off", cfg.Prefetch.Mode)
	require.Equal(t, 7, cfg.Store.MetadataStoreSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "prefetch:\n  mode: eager\n"))
	require.ErrorContains(t, err, "unknown prefetch mode")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Prefetch.Mode = "sometimes"
	cfg.Footer.TailLength = 4
	cfg.Physical.MaxConcurrency = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "unknown prefetch mode")
	require.ErrorContains(t, err, "footer.tail_length")
	require.ErrorContains(t, err, "physical.max_concurrency")
}
