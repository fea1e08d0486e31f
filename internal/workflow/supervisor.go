// -----------------------------------------------------------------------
// Supervisor - Periodic sweep for stale, aged and deferred work
// -----------------------------------------------------------------------

package workflow

import (
	"context"

	"github.com/ternarybob/arbor"
)

// Supervisor performs the periodic maintenance sweep over active jobs:
// staleness detection, the absolute age limit, and draining of due
// deferred tasks (retries and archivals). It shares the engine's store,
// timer queue and clock.
type Supervisor struct {
	engine *Engine
	logger arbor.ILogger
}

func NewSupervisor(engine *Engine, logger arbor.ILogger) *Supervisor {
	return &Supervisor{engine: engine, logger: logger}
}

// Sweep runs one maintenance pass. Safe to call from a ticker loop or
// directly from tests.
func (s *Supervisor) Sweep(ctx context.Context) {
	now := s.engine.clock.Now()

	for _, record := range s.engine.store.List() {
		if record.Stage.IsTerminal() {
			// Terminal jobs are drained by their archival timers.
			continue
		}

		age := now.Sub(record.CreatedAt)
		if age > s.engine.opts.MaxJobAge {
			s.logger.Warn().
				Str("job_id", record.ID).
				Str("stage", record.Stage.String()).
				Dur("age", age).
				Msg("Job exceeded maximum age, failing")
			s.engine.FailJob(ctx, record.ID, "job timeout", false)
			continue
		}

		// Passive stages wait on an external party and paused jobs wait
		// on the operator; neither counts as stalled.
		if record.Stage.IsPassive() || record.Paused {
			continue
		}

		idle := now.Sub(record.LastUpdatedAt)
		if idle > s.engine.opts.StaleThreshold {
			s.logger.Warn().
				Str("job_id", record.ID).
				Str("stage", record.Stage.String()).
				Dur("idle", idle).
				Msg("Job is stale, failing")
			s.engine.FailJob(ctx, record.ID, "stale - no updates", false)
		}
	}

	for _, task := range s.engine.timers.PopDue(now) {
		s.logger.Debug().
			Str("job_id", task.JobID).
			Str("action", task.Action).
			Msg("Running deferred task")
		task.Run(ctx)
	}
}
