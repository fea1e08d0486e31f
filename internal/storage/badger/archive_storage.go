package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArchiveStorage implements the JobArchiveStorage interface for Badger.
// Terminal job records land here once their grace window expires, and
// historical workflow stats are computed from this store.
type ArchiveStorage struct {
	db     *archiveDB
	logger arbor.ILogger
}

// NewArchiveStorage creates a new ArchiveStorage instance
func NewArchiveStorage(db *archiveDB, logger arbor.ILogger) interfaces.JobArchiveStorage {
	return &ArchiveStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArchiveStorage) ArchiveJob(ctx context.Context, record *models.JobRecord) error {
	if record.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to archive job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", record.ID).
		Str("stage", record.Stage.String()).
		Msg("Archived job record")
	return nil
}

func (s *ArchiveStorage) GetJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := s.db.Store().Get(jobID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("failed to get archived job: %w", err)
	}
	return &record, nil
}

func (s *ArchiveStorage) ListJobs(ctx context.Context, limit int) ([]*models.JobRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("LastUpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.JobRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list archived jobs: %w", err)
	}

	result := make([]*models.JobRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *ArchiveStorage) GetStats(ctx context.Context) (*interfaces.ArchiveStats, error) {
	stats := &interfaces.ArchiveStats{}

	for _, stage := range []models.Stage{models.StageCompleted, models.StageFailed, models.StageCancelled} {
		count, err := s.db.Store().Count(&models.JobRecord{}, badgerhold.Where("Stage").Eq(stage))
		if err != nil {
			return nil, fmt.Errorf("failed to count archived jobs: %w", err)
		}

		switch stage {
		case models.StageCompleted:
			stats.Completed = int(count)
		case models.StageFailed:
			stats.Failed = int(count)
		case models.StageCancelled:
			stats.Cancelled = int(count)
		}
		stats.Total += int(count)
	}

	return stats, nil
}

func (s *ArchiveStorage) DeleteOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	var records []models.JobRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("LastUpdatedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find expired archives: %w", err)
	}

	deleted := 0
	for i := range records {
		if err := s.db.Store().Delete(records[i].ID, &models.JobRecord{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", records[i].ID).Msg("Failed to delete expired archive record")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Int("days", days).Msg("Pruned expired archive records")
	}
	return deleted, nil
}
