package loom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Run("missing fields keep their defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("concurrent_mode: true\nexpiration:\n  async_ms: 1000\n"))
		require.NoError(t, err)

		assert.True(t, cfg.ConcurrentMode)
		assert.True(t, cfg.EnableSuspense)
		assert.Equal(t, int64(1000), cfg.Expiration.AsyncMs)
		assert.Equal(t, DefaultConfig().Expiration.AsyncBucketMs, cfg.Expiration.AsyncBucketMs)
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		_, err := ParseConfig([]byte("concurrent_mode: ["))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("rejects buckets finer than an expiration unit", func(t *testing.T) {
		_, err := ParseConfig([]byte("concurrent_mode: true\nexpiration:\n  async_bucket_ms: 5\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "async_bucket_ms")

		_, err = ParseConfig([]byte("expiration:\n  interactive_ms: 0\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "interactive_ms")
	})

	t.Run("a root clamps hand built expiration windows", func(t *testing.T) {
		h := newHarness(t, concurrent, func(cfg *Config) {
			cfg.Expiration = ExpirationConfig{AsyncBucketMs: 5}
		})

		h.render(H("p", nil, Text("ok")))
		assert.Equal(t, "<p>ok</p>", h.html())
	})

	t.Run("loads from a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "loom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("enable_suspense: false\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.False(t, cfg.EnableSuspense)

		_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}
