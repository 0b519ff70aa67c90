package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

type MemoryActivityStore struct {
	mu        sync.RWMutex
	lifecycle *domain.LifecycleRecord
	logs      []domain.ProcessingLogEntry
	nextID    int64
	now       func() time.Time
}

func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{now: utcNow}
}

func (s *MemoryActivityStore) EnsureInitialized(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle != nil {
		return nil
	}
	s.lifecycle = &domain.LifecycleRecord{
		ID:        domain.LifecycleID,
		Status:    domain.LifecycleStatusInitialized,
		StartedAt: s.now(),
	}
	return nil
}

func (s *MemoryActivityStore) RecordActivity(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle == nil {
		return ErrNotInitialized
	}
	now := s.now()
	s.lifecycle.LastActivityAt = &now
	s.lifecycle.TotalRequests++
	return nil
}

func (s *MemoryActivityStore) SetStatus(_ context.Context, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle == nil {
		return ErrNotInitialized
	}
	s.lifecycle.Status = status
	return nil
}

func (s *MemoryActivityStore) AppendLog(_ context.Context, imageURL, dimensions, format string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.logs = append(s.logs, domain.ProcessingLogEntry{
		ID:         s.nextID,
		Timestamp:  s.now(),
		ImageURL:   imageURL,
		Dimensions: dimensions,
		Format:     format,
	})
	return nil
}

func (s *MemoryActivityStore) ReadLifecycle(_ context.Context) (domain.LifecycleRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lifecycle == nil {
		return domain.LifecycleRecord{}, false, nil
	}
	record := *s.lifecycle
	if record.LastActivityAt != nil {
		last := *record.LastActivityAt
		record.LastActivityAt = &last
	}
	return record, true, nil
}

func (s *MemoryActivityStore) ReadRecentLogs(_ context.Context, limit int) ([]domain.ProcessingLogEntry, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	entries := make([]domain.ProcessingLogEntry, len(s.logs))
	copy(entries, s.logs)
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryActivityStore) Close() error {
	return nil
}
