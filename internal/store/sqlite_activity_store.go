package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000-07:00"

var sqliteDialect = sqlDialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS proxy_lifecycle (
			id INTEGER PRIMARY KEY,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			last_activity_at DATETIME,
			total_requests INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS processing_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			image_url TEXT NOT NULL,
			dimensions TEXT NOT NULL,
			format TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processing_logs_timestamp ON processing_logs(timestamp)`,
	},
	insertInitial: `INSERT INTO proxy_lifecycle (id, status, started_at, total_requests)
		VALUES (?, ?, ?, 0) ON CONFLICT(id) DO NOTHING`,
	recordActivity: `UPDATE proxy_lifecycle
		SET last_activity_at = ?, total_requests = total_requests + 1
		WHERE id = ?`,
	setStatus: `UPDATE proxy_lifecycle SET status = ? WHERE id = ?`,
	appendLog: `INSERT INTO processing_logs (timestamp, image_url, dimensions, format)
		VALUES (?, ?, ?, ?)`,
	readLifecycle: `SELECT id, status, started_at, last_activity_at, total_requests
		FROM proxy_lifecycle WHERE id = ?`,
	readLogs: `SELECT id, timestamp, image_url, dimensions, format
		FROM processing_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
	timeArg: func(t time.Time) any {
		return t.UTC().Format(sqliteTimeLayout)
	},
}

// NewSQLiteActivityStore opens (creating if needed) the database at path.
// A single connection serialises writers.
func NewSQLiteActivityStore(ctx context.Context, path string) (*SQLActivityStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return &SQLActivityStore{db: db, dialect: sqliteDialect, now: utcNow}, nil
}

func isMissingTable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}
