package store

import (
	"context"
	"errors"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

var ErrNotInitialized = errors.New("activity store is not initialized")

// ActivityStore owns the lifecycle singleton and the processing log. It is
// the only writer of either; implementations serialise their own writes.
type ActivityStore interface {
	EnsureInitialized(ctx context.Context) error
	RecordActivity(ctx context.Context) error
	SetStatus(ctx context.Context, status string) error
	AppendLog(ctx context.Context, imageURL, dimensions, format string) error
	ReadLifecycle(ctx context.Context) (domain.LifecycleRecord, bool, error)
	ReadRecentLogs(ctx context.Context, limit int) ([]domain.ProcessingLogEntry, error)
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return domain.RecentLogLimit
	}
	return limit
}

func utcNow() time.Time {
	return time.Now().UTC()
}
