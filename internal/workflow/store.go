// -----------------------------------------------------------------------
// Job Context Store - Synchronized map of active job records
// -----------------------------------------------------------------------

package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/laboro/internal/models"
)

// Store owns the active job records. All mutation goes through
// compare-and-swap style operations under the store lock, so two
// concurrent transitions for the same job can never interleave
// destructively: one commits, the other observes a stale stage and is
// rejected. Records handed out are clones; callers never alias store
// internals.
type Store struct {
	mu            sync.RWMutex
	jobs          map[string]*models.JobRecord
	maxConcurrent int
}

// NewStore creates a store with the given admission-control cap.
func NewStore(maxConcurrent int) *Store {
	return &Store{
		jobs:          make(map[string]*models.JobRecord),
		maxConcurrent: maxConcurrent,
	}
}

// Create admits a new job record in the Idle stage.
func (s *Store) Create(jobID string, payload map[string]interface{}) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
	}
	if len(s.jobs) >= s.maxConcurrent {
		return nil, fmt.Errorf("%w: limit %d", ErrCapacityExceeded, s.maxConcurrent)
	}

	record := models.NewJobRecord(jobID, payload)
	s.jobs[jobID] = record
	return record.Clone(), nil
}

// Get returns a clone of the job record, or ErrJobNotFound.
func (s *Store) Get(jobID string) (*models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return record.Clone(), nil
}

// MutateStage commits a stage transition atomically: the mutation only
// applies if the record is still in expectedFrom, otherwise ErrJobBusy
// is returned and nothing changes. On success the patch is merged into
// the payload, with a nil patch value deleting its key, and a history
// entry is appended.
func (s *Store) MutateStage(jobID string, expectedFrom, to models.Stage, patch map[string]interface{}) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if record.Stage != expectedFrom {
		return nil, fmt.Errorf("%w: job %s moved to %s during transition from %s",
			ErrJobBusy, jobID, record.Stage, expectedFrom)
	}

	record.Stage = to
	for k, v := range patch {
		if v == nil {
			delete(record.Payload, k)
			continue
		}
		record.Payload[k] = v
	}
	record.AppendTransition(expectedFrom, to, patch)

	return record.Clone(), nil
}

// MarkError increments the error counter and records the failure reason
// without changing the stage. The counter never resets while the job is
// active.
func (s *Store) MarkError(jobID string, reason string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	record.ErrorCount++
	record.LastError = reason
	record.LastUpdatedAt = time.Now()
	return record.Clone(), nil
}

// IncrementRetry bumps the retry counter and returns the updated record.
func (s *Store) IncrementRetry(jobID string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	record.RetryCount++
	record.LastUpdatedAt = time.Now()
	return record.Clone(), nil
}

// SetPaused toggles the pause flag.
func (s *Store) SetPaused(jobID string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	record.Paused = paused
	record.LastUpdatedAt = time.Now()
	return nil
}

// Delete removes a job from the active map. Deleting an absent job is
// not an error.
func (s *Store) Delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Snapshot returns a point-in-time view of all active jobs' stages. The
// lock is held only for the map copy.
func (s *Store) Snapshot() map[string]models.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]models.Stage, len(s.jobs))
	for id, record := range s.jobs {
		snapshot[id] = record.Stage
	}
	return snapshot
}

// List returns clones of all active records, for the supervisor sweep.
func (s *Store) List() []*models.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.JobRecord, 0, len(s.jobs))
	for _, record := range s.jobs {
		records = append(records, record.Clone())
	}
	return records
}

// Len returns the number of active jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
