package interfaces

import (
	"context"

	"github.com/ternarybob/laboro/internal/models"
)

// ArchiveStats summarizes the durable job archive for status reporting.
type ArchiveStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// JobArchiveStorage persists terminal job records once the supervisor
// removes them from the active store. Historical workflow stats are
// sourced from here.
type JobArchiveStorage interface {
	ArchiveJob(ctx context.Context, record *models.JobRecord) error
	GetJob(ctx context.Context, jobID string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, limit int) ([]*models.JobRecord, error)
	GetStats(ctx context.Context) (*ArchiveStats, error)
	DeleteOlderThan(ctx context.Context, days int) (int, error)
}

// StorageManager provides access to all storage backends.
type StorageManager interface {
	JobArchive() JobArchiveStorage
	Close() error
}
