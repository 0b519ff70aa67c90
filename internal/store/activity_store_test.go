package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) ActivityStore

func backends(t *testing.T) map[string]storeFactory {
	t.Helper()

	factories := map[string]storeFactory{
		"memory": func(t *testing.T) ActivityStore {
			return NewMemoryActivityStore()
		},
		"sqlite": func(t *testing.T) ActivityStore {
			s, err := NewSQLiteActivityStore(context.Background(), filepath.Join(t.TempDir(), "activity.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) ActivityStore {
			mr := miniredis.RunT(t)
			s := NewRedisActivityStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	if dsn := os.Getenv("PIXELPROXY_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) ActivityStore {
			ctx := context.Background()
			s, err := NewPostgresActivityStore(ctx, dsn)
			require.NoError(t, err)
			_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS processing_logs, proxy_lifecycle")
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return factories
}

func TestActivityStoreLifecycle(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, ok, err := s.ReadLifecycle(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.EnsureInitialized(ctx))
			first, ok, err := s.ReadLifecycle(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, domain.LifecycleID, first.ID)
			assert.Equal(t, domain.LifecycleStatusInitialized, first.Status)
			assert.Nil(t, first.LastActivityAt)
			assert.Zero(t, first.TotalRequests)
			assert.WithinDuration(t, time.Now(), first.StartedAt, time.Minute)

			// A second call must not reset the record.
			require.NoError(t, s.RecordActivity(ctx))
			require.NoError(t, s.EnsureInitialized(ctx))

			again, ok, err := s.ReadLifecycle(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(1), again.TotalRequests)
			assert.True(t, first.StartedAt.Equal(again.StartedAt))
			require.NotNil(t, again.LastActivityAt)

			require.NoError(t, s.SetStatus(ctx, domain.LifecycleStatusRunning))
			running, _, err := s.ReadLifecycle(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.LifecycleStatusRunning, running.Status)
		})
	}
}

func TestActivityStoreRequiresInitialization(t *testing.T) {
	for name, open := range backends(t) {
		if name == "sqlite" || name == "postgres" {
			// Writes against a missing schema surface the driver error instead.
			continue
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.ErrorIs(t, s.RecordActivity(ctx), ErrNotInitialized)
			require.ErrorIs(t, s.SetStatus(ctx, domain.LifecycleStatusRunning), ErrNotInitialized)
		})
	}
}

func TestActivityStoreConcurrentRecordActivity(t *testing.T) {
	const (
		workers = 8
		perWork = 25
	)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.EnsureInitialized(ctx))

			var wg sync.WaitGroup
			errs := make(chan error, workers*perWork)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range perWork {
						errs <- s.RecordActivity(ctx)
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			record, ok, err := s.ReadLifecycle(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(workers*perWork), record.TotalRequests)
		})
	}
}

func TestActivityStoreRecentLogs(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.EnsureInitialized(ctx))

			empty, err := s.ReadRecentLogs(ctx, domain.RecentLogLimit)
			require.NoError(t, err)
			assert.Empty(t, empty)

			for i := range 12 {
				require.NoError(t, s.AppendLog(ctx, fmt.Sprintf("https://example.com/%d.jpg", i), "10x10", "webp"))
			}

			entries, err := s.ReadRecentLogs(ctx, domain.RecentLogLimit)
			require.NoError(t, err)
			require.Len(t, entries, domain.RecentLogLimit)
			assert.Equal(t, "https://example.com/11.jpg", entries[0].ImageURL)
			assert.Equal(t, "https://example.com/2.jpg", entries[len(entries)-1].ImageURL)
			for i := 1; i < len(entries); i++ {
				assert.False(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
				assert.Greater(t, entries[i-1].ID, entries[i].ID)
			}
			assert.Equal(t, "10x10", entries[0].Dimensions)
			assert.Equal(t, "webp", entries[0].Format)

			defaulted, err := s.ReadRecentLogs(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, defaulted, domain.RecentLogLimit)
		})
	}
}

func TestMemoryActivityStoreOrdersTiesByID(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	s := NewMemoryActivityStore()
	s.now = func() time.Time { return fixed }
	require.NoError(t, s.EnsureInitialized(ctx))
	require.NoError(t, s.AppendLog(ctx, "a", "1x1", "jpeg"))
	require.NoError(t, s.AppendLog(ctx, "b", "1x1", "jpeg"))

	entries, err := s.ReadRecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ImageURL)
	assert.Equal(t, "a", entries[1].ImageURL)
}

func TestSQLiteActivityStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "activity.db")

	s, err := NewSQLiteActivityStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.EnsureInitialized(ctx))
	require.NoError(t, s.RecordActivity(ctx))
	require.NoError(t, s.AppendLog(ctx, "https://example.com/a.png", "5x5", "png"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteActivityStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	require.NoError(t, reopened.EnsureInitialized(ctx))

	record, ok, err := reopened.ReadLifecycle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), record.TotalRequests)

	entries, err := reopened.ReadRecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.com/a.png", entries[0].ImageURL)
}
