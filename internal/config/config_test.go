package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIXELPROXY_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.False(t, cfg.Fetch.PropagateClientCancel)
	assert.Equal(t, "quality", cfg.Transform.PNGCompression)
	assert.GreaterOrEqual(t, cfg.Transform.MaxConcurrent, 1)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PIXELPROXY_CONFIG", "")
	t.Setenv("PIXELPROXY_HTTP_ADDR", ":9999")
	t.Setenv("PIXELPROXY_FETCH_TIMEOUT", "3s")
	t.Setenv("PIXELPROXY_TRANSFORM_PNG_COMPRESSION", "INVERSE")
	t.Setenv("PIXELPROXY_STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "inverse", cfg.Transform.PNGCompression)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: redis\nredis:\n  addr: cache:6379\n"), 0o644))
	t.Setenv("PIXELPROXY_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("PIXELPROXY_CONFIG", "")

	t.Run("store driver", func(t *testing.T) {
		t.Setenv("PIXELPROXY_STORE_DRIVER", "mongo")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("png policy", func(t *testing.T) {
		t.Setenv("PIXELPROXY_TRANSFORM_PNG_COMPRESSION", "random")
		_, err := Load()
		require.Error(t, err)
	})
}
