package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRunEnv(t *testing.T, addr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.db")
	t.Setenv("PIXELPROXY_CONFIG", "")
	t.Setenv("PIXELPROXY_HTTP_ADDR", addr)
	t.Setenv("PIXELPROXY_STORE_DRIVER", "sqlite")
	t.Setenv("PIXELPROXY_STORE_SQLITE_PATH", path)
	t.Setenv("PIXELPROXY_TRACING_EXPORTER", "none")
	t.Setenv("PIXELPROXY_SENTRY_DSN", "")
	return path
}

func readLifecycle(t *testing.T, path string) domain.LifecycleRecord {
	t.Helper()
	s, err := store.NewSQLiteActivityStore(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	record, ok, err := s.ReadLifecycle(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return record
}

func TestRunInvalidConfigReturnsError(t *testing.T) {
	setRunEnv(t, "127.0.0.1:0")
	t.Setenv("PIXELPROXY_STORE_DRIVER", "cassandra")

	err := run(context.Background(), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRunListenFailureReturnsError(t *testing.T) {
	path := setRunEnv(t, "127.0.0.1:-1")

	err := run(context.Background(), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on 127.0.0.1:-1")

	// The store was closed on the way out, so it reopens cleanly.
	assert.Equal(t, domain.LifecycleStatusInitialized, readLifecycle(t, path).Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	path := setRunEnv(t, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, io.Discard))

	assert.Equal(t, domain.LifecycleStatusStopped, readLifecycle(t, path).Status)
}
