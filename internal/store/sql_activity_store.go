package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

// sqlDialect holds the statements that differ between the SQL backends.
type sqlDialect struct {
	name           string
	schema         []string
	insertInitial  string
	recordActivity string
	setStatus      string
	appendLog      string
	readLifecycle  string
	readLogs       string
	timeArg        func(time.Time) any
}

// SQLActivityStore backs the activity store with database/sql; the dialect
// selects SQLite or PostgreSQL statements.
type SQLActivityStore struct {
	db      *sql.DB
	dialect sqlDialect
	now     func() time.Time
}

func (s *SQLActivityStore) EnsureInitialized(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s activity schema: %w", s.dialect.name, err)
		}
	}

	if _, err := s.db.ExecContext(
		ctx,
		s.dialect.insertInitial,
		domain.LifecycleID,
		domain.LifecycleStatusInitialized,
		s.dialect.timeArg(s.now()),
	); err != nil {
		return fmt.Errorf("insert lifecycle row: %w", err)
	}
	return nil
}

func (s *SQLActivityStore) RecordActivity(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, s.dialect.recordActivity, s.dialect.timeArg(s.now()), domain.LifecycleID)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return requireRow(res)
}

func (s *SQLActivityStore) SetStatus(ctx context.Context, status string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.setStatus, status, domain.LifecycleID)
	if err != nil {
		return fmt.Errorf("set lifecycle status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLActivityStore) AppendLog(ctx context.Context, imageURL, dimensions, format string) error {
	if _, err := s.db.ExecContext(
		ctx,
		s.dialect.appendLog,
		s.dialect.timeArg(s.now()),
		imageURL,
		dimensions,
		format,
	); err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

func (s *SQLActivityStore) ReadLifecycle(ctx context.Context) (domain.LifecycleRecord, bool, error) {
	var (
		record       domain.LifecycleRecord
		lastActivity sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.dialect.readLifecycle, domain.LifecycleID).Scan(
		&record.ID,
		&record.Status,
		&record.StartedAt,
		&lastActivity,
		&record.TotalRequests,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return domain.LifecycleRecord{}, false, nil
		}
		return domain.LifecycleRecord{}, false, fmt.Errorf("query lifecycle: %w", err)
	}

	record.StartedAt = record.StartedAt.UTC()
	if lastActivity.Valid {
		t := lastActivity.Time.UTC()
		record.LastActivityAt = &t
	}
	return record, true, nil
}

func (s *SQLActivityStore) ReadRecentLogs(ctx context.Context, limit int) ([]domain.ProcessingLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.readLogs, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query processing logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ProcessingLogEntry, 0, normalizeLimit(limit))
	for rows.Next() {
		var entry domain.ProcessingLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.ImageURL,
			&entry.Dimensions,
			&entry.Format,
		); err != nil {
			return nil, fmt.Errorf("scan processing log: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing logs: %w", err)
	}
	return entries, nil
}

func (s *SQLActivityStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotInitialized
	}
	return nil
}
