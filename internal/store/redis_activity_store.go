package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/redis/go-redis/v9"
)

var (
	initLifecycleScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'status', ARGV[2], 'started_at', ARGV[3], 'total_requests', 0)
return 1
`)

	recordActivityScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'last_activity_at', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'total_requests', 1)
`)

	// Timestamps are fixed-width UTC strings, so string order is time order.
	appendLogScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[2])
local ts = ARGV[1]
local last = redis.call('GET', KEYS[3])
if last and last > ts then
	ts = last
end
redis.call('SET', KEYS[3], ts)
redis.call('LPUSH', KEYS[1], cjson.encode({
	id = id,
	timestamp = ts,
	image_url = ARGV[2],
	dimensions = ARGV[3],
	format = ARGV[4],
}))
return id
`)

	setStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1
`)
)

// RedisActivityStore keeps the lifecycle row in a hash and the processing
// log in a list, newest entry at the head.
type RedisActivityStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisActivityStore(client redis.UniversalClient, prefix string) *RedisActivityStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pixelproxy"
	}
	return &RedisActivityStore{client: client, prefix: prefix, now: utcNow}
}

func (s *RedisActivityStore) lifecycleKey() string { return s.prefix + ":lifecycle" }
func (s *RedisActivityStore) logsKey() string      { return s.prefix + ":processing_logs" }
func (s *RedisActivityStore) logSeqKey() string    { return s.prefix + ":processing_logs:seq" }
func (s *RedisActivityStore) logClockKey() string  { return s.prefix + ":processing_logs:last_ts" }

func (s *RedisActivityStore) EnsureInitialized(ctx context.Context) error {
	err := initLifecycleScript.Run(
		ctx,
		s.client,
		[]string{s.lifecycleKey()},
		domain.LifecycleID,
		domain.LifecycleStatusInitialized,
		formatRedisTime(s.now()),
	).Err()
	if err != nil {
		return fmt.Errorf("initialize redis lifecycle: %w", err)
	}
	return nil
}

func (s *RedisActivityStore) RecordActivity(ctx context.Context) error {
	n, err := recordActivityScript.Run(ctx, s.client, []string{s.lifecycleKey()}, formatRedisTime(s.now())).Int64()
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	if n < 0 {
		return ErrNotInitialized
	}
	return nil
}

func (s *RedisActivityStore) SetStatus(ctx context.Context, status string) error {
	n, err := setStatusScript.Run(ctx, s.client, []string{s.lifecycleKey()}, status).Int64()
	if err != nil {
		return fmt.Errorf("set lifecycle status: %w", err)
	}
	if n < 0 {
		return ErrNotInitialized
	}
	return nil
}

func (s *RedisActivityStore) AppendLog(ctx context.Context, imageURL, dimensions, format string) error {
	err := appendLogScript.Run(
		ctx,
		s.client,
		[]string{s.logsKey(), s.logSeqKey(), s.logClockKey()},
		formatRedisTime(s.now()),
		imageURL,
		dimensions,
		format,
	).Err()
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

func (s *RedisActivityStore) ReadLifecycle(ctx context.Context) (domain.LifecycleRecord, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.lifecycleKey()).Result()
	if err != nil {
		return domain.LifecycleRecord{}, false, fmt.Errorf("read redis lifecycle: %w", err)
	}
	if len(fields) == 0 {
		return domain.LifecycleRecord{}, false, nil
	}

	record := domain.LifecycleRecord{
		ID:     domain.LifecycleID,
		Status: fields["status"],
	}
	if record.StartedAt, err = parseRedisTime(fields["started_at"]); err != nil {
		return domain.LifecycleRecord{}, false, fmt.Errorf("parse started_at: %w", err)
	}
	if raw := fields["last_activity_at"]; raw != "" {
		last, err := parseRedisTime(raw)
		if err != nil {
			return domain.LifecycleRecord{}, false, fmt.Errorf("parse last_activity_at: %w", err)
		}
		record.LastActivityAt = &last
	}
	if raw := fields["total_requests"]; raw != "" {
		if record.TotalRequests, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return domain.LifecycleRecord{}, false, fmt.Errorf("parse total_requests: %w", err)
		}
	}
	return record, true, nil
}

func (s *RedisActivityStore) ReadRecentLogs(ctx context.Context, limit int) ([]domain.ProcessingLogEntry, error) {
	limit = normalizeLimit(limit)

	raw, err := s.client.LRange(ctx, s.logsKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read processing logs: %w", err)
	}

	entries := make([]domain.ProcessingLogEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.ProcessingLogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode processing log: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisActivityStore) Close() error {
	return s.client.Close()
}

const redisTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatRedisTime(t time.Time) string {
	return t.UTC().Format(redisTimeLayout)
}

func parseRedisTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
