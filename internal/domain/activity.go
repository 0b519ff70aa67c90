package domain

import "time"

const (
	LifecycleID = 1

	LifecycleStatusInitialized = "initialized"
	LifecycleStatusRunning     = "running"
	LifecycleStatusStopped     = "stopped"

	RecentLogLimit = 10
)

type LifecycleRecord struct {
	ID             int        `json:"id"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	TotalRequests  int64      `json:"total_requests"`
}

type ProcessingLogEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ImageURL   string    `json:"image_url"`
	Dimensions string    `json:"dimensions"`
	Format     string    `json:"format"`
}
