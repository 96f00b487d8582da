package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_FillsEveryField(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":8008", cfg.Listen)
	require.Equal(t, 60, cfg.Cache.MaxEntries)
	require.Equal(t, 86400, cfg.Cache.MaxAgeSeconds)
	require.Equal(t, 30*time.Second, cfg.Cache.FetchTimeout())
	require.Equal(t, "/offline.html", cfg.Cache.OfflineFallbackPath)
	require.Equal(t, 200, cfg.Sync.MaxEntries)
	require.Equal(t, 256*1024, cfg.Sync.MaxBodyBytes)
	require.Equal(t, 5, cfg.Sync.MaxAttempts)
	require.Equal(t, []int{30, 120, 600, 1800, 3600}, cfg.Sync.RetryDelaysSeconds)
	require.Equal(t, "/api/", cfg.Sync.ScopePrefix)
}

func TestLoad_NormalizesAndClamps(t *testing.T) {
	yaml := `
origin: "http://app:3000/"
cache:
  maxEntries: -5
  rules:
    - prefix: "/img/"
      strategy: "cache-first"
      appliesTo: "asset"
    - prefix: "/broken/"
      strategy: "no-such-strategy"
    - strategy: "cache-first"
  defaults:
    api: "bogus"
    asset: "cache-first"
sync:
  retryDelaysSeconds: [600, 30, -1, 120]
  maxAttempts: 0
`
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "http://app:3000", cfg.Origin, "trailing slash trimmed")
	require.Equal(t, 60, cfg.Cache.MaxEntries, "negative bound clamped to default")

	// Unknown-strategy and matcher-less rules are dropped, valid ones kept.
	require.Len(t, cfg.Cache.Rules, 1)
	require.Equal(t, "/img/", cfg.Cache.Rules[0].Prefix)
	require.Equal(t, "asset", cfg.Cache.Rules[0].AppliesTo)

	// Invalid default strategy dropped, valid one kept.
	_, hasAPI := cfg.Cache.Defaults["api"]
	require.False(t, hasAPI)
	require.Equal(t, "cache-first", cfg.Cache.Defaults["asset"])

	// Delays sorted ascending with non-positive entries removed.
	require.Equal(t, []int{30, 120, 600}, cfg.Sync.RetryDelaysSeconds)
	require.Equal(t, 5, cfg.Sync.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
