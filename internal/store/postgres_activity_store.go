package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var postgresDialect = sqlDialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS proxy_lifecycle (
			id INTEGER PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ,
			total_requests BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS processing_logs (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			image_url TEXT NOT NULL,
			dimensions TEXT NOT NULL,
			format TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processing_logs_timestamp ON processing_logs (timestamp DESC)`,
	},
	insertInitial: `INSERT INTO proxy_lifecycle (id, status, started_at, total_requests)
		VALUES ($1, $2, $3, 0) ON CONFLICT (id) DO NOTHING`,
	recordActivity: `UPDATE proxy_lifecycle
		SET last_activity_at = $1, total_requests = total_requests + 1
		WHERE id = $2`,
	setStatus: `UPDATE proxy_lifecycle SET status = $1 WHERE id = $2`,
	appendLog: `INSERT INTO processing_logs (timestamp, image_url, dimensions, format)
		VALUES ($1, $2, $3, $4)`,
	readLifecycle: `SELECT id, status, started_at, last_activity_at, total_requests
		FROM proxy_lifecycle WHERE id = $1`,
	readLogs: `SELECT id, timestamp, image_url, dimensions, format
		FROM processing_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1`,
	timeArg: func(t time.Time) any {
		return t.UTC()
	},
}

func NewPostgresActivityStore(ctx context.Context, dsn string) (*SQLActivityStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &SQLActivityStore{db: db, dialect: postgresDialect, now: utcNow}, nil
}
