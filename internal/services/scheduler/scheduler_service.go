// -----------------------------------------------------------------------
// Scheduler - Cron-driven search sweeps, message polling and daily reset
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// taskEntry tracks one registered periodic task.
type taskEntry struct {
	name     string
	schedule string
	handler  func(ctx context.Context) error
	cronID   cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Service runs the periodic agent work: the job search sweep, the
// message polling loop and the midnight application-counter reset.
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger

	mu      sync.Mutex
	tasks   map[string]*taskEntry
	running bool
	cancel  context.CancelFunc
}

func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		tasks:  make(map[string]*taskEntry),
	}
}

// RegisterTask adds a named periodic task. The schedule accepts standard
// cron expressions and "@every <duration>" descriptors.
func (s *Service) RegisterTask(name, schedule string, handler func(ctx context.Context) error) error {
	if name == "" || schedule == "" || handler == nil {
		return fmt.Errorf("task name, schedule and handler are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	if s.running {
		return fmt.Errorf("cannot register task %q while scheduler is running", name)
	}

	s.tasks[name] = &taskEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}

	s.logger.Info().
		Str("task", name).
		Str("schedule", schedule).
		Msg("Registered scheduled task")

	return nil
}

// Start schedules every registered task and begins the cron loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	for _, entry := range s.tasks {
		entry := entry
		id, err := s.cron.AddFunc(entry.schedule, func() {
			s.runTask(ctx, entry)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("failed to schedule task %q (%s): %w", entry.name, entry.schedule, err)
		}
		entry.cronID = id
	}

	s.cancel = cancel
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("tasks", len(s.tasks)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop and waits for in-flight task runs.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for scheduled tasks to finish")
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the cron loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunTaskNow executes one registered task immediately, outside its
// schedule. Used by the operator API to force a search sweep.
func (s *Service) RunTaskNow(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.tasks[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}

	s.runTask(ctx, entry)

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.lastErr != "" {
		return fmt.Errorf("task %q failed: %s", name, entry.lastErr)
	}
	return nil
}

// TaskStatus returns the last-run metadata for every registered task.
func (s *Service) TaskStatus() map[string]map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]map[string]interface{}, len(s.tasks))
	for name, entry := range s.tasks {
		info := map[string]interface{}{
			"schedule": entry.schedule,
		}
		if entry.lastRun != nil {
			info["last_run"] = entry.lastRun.Format(time.RFC3339)
		}
		if entry.lastErr != "" {
			info["last_error"] = entry.lastErr
		}
		status[name] = info
	}
	return status
}

func (s *Service) runTask(ctx context.Context, entry *taskEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("task", entry.name).
				Msgf("Scheduled task panicked: %v", r)
		}
	}()

	start := time.Now()
	err := entry.handler(ctx)

	s.mu.Lock()
	entry.lastRun = &start
	if err != nil {
		entry.lastErr = err.Error()
	} else {
		entry.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("task", entry.name).
			Msg("Scheduled task failed")
		return
	}

	s.logger.Debug().
		Str("task", entry.name).
		Str("duration", time.Since(start).String()).
		Msg("Scheduled task finished")
}
