// -----------------------------------------------------------------------
// Workflow Engine - The single authority for job stage transitions
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
)

// Options tunes the engine and its supervisor.
type Options struct {
	MaxConcurrentJobs int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	StaleThreshold    time.Duration
	MaxJobAge         time.Duration
	SweepInterval     time.Duration
	CompletedGrace    time.Duration
	FailedGrace       time.Duration
	CancelledGrace    time.Duration
}

// OptionsFromConfig builds engine options from the validated app config.
func OptionsFromConfig(cfg *common.Config) Options {
	return Options{
		MaxConcurrentJobs: cfg.Workflow.MaxConcurrentJobs,
		MaxRetries:        cfg.Workflow.MaxRetries,
		RetryBaseDelay:    common.Duration(cfg.Workflow.RetryBaseDelay),
		RetryMaxDelay:     common.Duration(cfg.Workflow.RetryMaxDelay),
		StaleThreshold:    common.Duration(cfg.Workflow.StaleThreshold),
		MaxJobAge:         common.Duration(cfg.Workflow.MaxJobAge),
		SweepInterval:     common.Duration(cfg.Workflow.SweepInterval),
		CompletedGrace:    common.Duration(cfg.Workflow.CompletedGrace),
		FailedGrace:       common.Duration(cfg.Workflow.FailedGrace),
		CancelledGrace:    common.Duration(cfg.Workflow.CancelledGrace),
	}
}

// Engine validates and performs stage transitions, mutates the job
// store, and dispatches registered handlers. Commit and reaction are
// split: the store mutation is the only critical section, and no lock
// is held while handlers run, so a slow or crashing handler can never
// leave a job's stage inconsistent.
type Engine struct {
	table    *TransitionTable
	store    *Store
	registry *Registry
	timers   *TimerQueue
	archive  interfaces.JobArchiveStorage // optional
	events   interfaces.EventService      // optional
	clock    Clock
	opts     Options
	logger   arbor.ILogger
}

// NewEngine wires an engine with its store, transition table, handler
// registry and timer queue. archive and events may be nil.
func NewEngine(opts Options, archive interfaces.JobArchiveStorage, events interfaces.EventService, logger arbor.ILogger) *Engine {
	return &Engine{
		table:    NewTransitionTable(),
		store:    NewStore(opts.MaxConcurrentJobs),
		registry: NewRegistry(),
		timers:   NewTimerQueue(),
		archive:  archive,
		events:   events,
		clock:    NewRealClock(),
		opts:     opts,
		logger:   logger,
	}
}

// WithClock swaps the clock. Tests inject a virtual clock so retry and
// archival scheduling can be driven without real waits.
func (e *Engine) WithClock(clock Clock) *Engine {
	e.clock = clock
	return e
}

// Store exposes the job context store to the supervisor and tests.
func (e *Engine) Store() *Store { return e.store }

// Timers exposes the deferred-task queue to the supervisor and tests.
func (e *Engine) Timers() *TimerQueue { return e.timers }

// RegisterStageHandler registers a handler invoked on entry to a stage.
func (e *Engine) RegisterStageHandler(stage models.Stage, handler interfaces.HandlerFunc) {
	e.registry.RegisterStageHandler(stage, handler)
}

// RegisterObserver registers an observer invoked on every transition.
func (e *Engine) RegisterObserver(observer interfaces.ObserverFunc) {
	e.registry.RegisterObserver(observer)
}

// StartJobWorkflow admits a new job in the Idle stage. An empty jobID is
// replaced with a generated one.
func (e *Engine) StartJobWorkflow(ctx context.Context, jobID string, payload map[string]interface{}) (string, error) {
	if jobID == "" {
		jobID = common.NewJobID()
	}

	record, err := e.store.Create(jobID, payload)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to start job workflow")
		return "", err
	}

	e.logger.Info().
		Str("job_id", jobID).
		Int("active_jobs", e.store.Len()).
		Msg("Started workflow for job")

	e.publish(ctx, interfaces.Event{Type: interfaces.EventJobStarted, Payload: record})
	return jobID, nil
}

// TransitionJob validates the requested edge and, if legal, commits the
// mutation and dispatches handlers. Illegal edges, unknown jobs, and
// lost races are rejected silently: logged, false returned, no state
// change. Rejection is expected under concurrent handler races and must
// not crash the caller.
func (e *Engine) TransitionJob(ctx context.Context, jobID string, to models.Stage, patch map[string]interface{}) bool {
	record, err := e.store.Get(jobID)
	if err != nil {
		e.logger.Warn().Str("job_id", jobID).Str("to", to.String()).Msg("Transition requested for unknown job")
		return false
	}

	// Paused jobs accept only terminal failure or cancellation;
	// everything else waits for ResumeJob.
	if record.Paused && to != models.StageCancelled && to != models.StageFailed {
		e.logger.Debug().Str("job_id", jobID).Str("to", to.String()).Msg("Transition ignored - job is paused")
		return false
	}

	from := record.Stage
	if !e.table.IsLegal(from, to) {
		e.logger.Warn().
			Err(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)).
			Str("job_id", jobID).
			Msg("Invalid transition rejected")
		return false
	}
	if !e.table.GuardAllows(from, to, record) {
		e.logger.Debug().
			Str("job_id", jobID).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Transition guard rejected edge")
		return false
	}

	updated, err := e.store.MutateStage(jobID, from, to, patch)
	if err != nil {
		// Lost a race with a concurrent transition, or the job was
		// archived in between. The other call owns the edge.
		e.logger.Warn().Err(err).Str("job_id", jobID).Str("to", to.String()).Msg("Transition commit rejected")
		return false
	}

	e.afterCommit(ctx, jobID, from, to, updated)
	return true
}

// afterCommit runs the reaction side of a committed transition: terminal
// bookkeeping, event publication, then stage handlers and observers.
func (e *Engine) afterCommit(ctx context.Context, jobID string, from, to models.Stage, record *models.JobRecord) {
	e.logger.Info().
		Str("job_id", jobID).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Job transitioned")

	if to.IsTerminal() {
		// A terminal job no longer retries; drop any pending re-entry.
		e.timers.CancelJob(jobID)
		e.scheduleArchival(jobID, to)
	}

	e.publish(ctx, interfaces.Event{
		Type: interfaces.EventJobTransition,
		Payload: map[string]interface{}{
			"job_id": jobID,
			"from":   from.String(),
			"to":     to.String(),
		},
	})

	// Handlers react to, not gate, the transition: the stage is already
	// committed, so a handler failure is logged and the next handler
	// still runs. A handler that wants the failure to affect progress
	// calls FailJob itself.
	for _, handler := range e.registry.HandlersFor(to) {
		e.invokeHandler(ctx, jobID, to, handler, record)
	}

	for _, observer := range e.registry.Observers() {
		e.invokeObserver(ctx, jobID, from, to, observer, record)
	}
}

func (e *Engine) invokeHandler(ctx context.Context, jobID string, stage models.Stage, handler interfaces.HandlerFunc, record *models.JobRecord) {
	defer e.recoverDispatch(jobID, "state handler")
	if err := handler(ctx, jobID, record.Clone().Payload); err != nil {
		e.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Str("stage", stage.String()).
			Msg("Error in state handler")
	}
}

func (e *Engine) invokeObserver(ctx context.Context, jobID string, from, to models.Stage, observer interfaces.ObserverFunc, record *models.JobRecord) {
	defer e.recoverDispatch(jobID, "transition observer")
	if err := observer(ctx, jobID, from, to, record.Clone().Payload); err != nil {
		e.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Msg("Error in transition observer")
	}
}

func (e *Engine) recoverDispatch(jobID string, kind string) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		e.logger.Error().
			Str("job_id", jobID).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(buf[:n])).
			Msg("Recovered from panic in " + kind)
	}
}

// FailJob records a failure for the job. With retry enabled and attempts
// remaining, a stage-resuming re-entry is scheduled after exponential
// backoff; otherwise the job transitions to Failed permanently.
func (e *Engine) FailJob(ctx context.Context, jobID string, reason string, retry bool) {
	record, err := e.store.MarkError(jobID, reason)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("FailJob for unknown job")
		return
	}

	e.publish(ctx, interfaces.Event{
		Type: interfaces.EventJobFailed,
		Payload: map[string]interface{}{
			"job_id":      jobID,
			"reason":      reason,
			"error_count": record.ErrorCount,
		},
	})

	if retry && record.ErrorCount < e.opts.MaxRetries {
		delay := e.retryDelay(record.RetryCount)
		updated, err := e.store.IncrementRetry(jobID)
		if err != nil {
			return
		}
		fireAt := e.clock.Now().Add(delay)
		e.timers.Push(&DeferredTask{
			FireAt: fireAt,
			JobID:  jobID,
			Action: "retry",
			Run:    func(taskCtx context.Context) { e.resumeJob(taskCtx, jobID) },
		})

		e.logger.Info().
			Str("job_id", jobID).
			Str("reason", reason).
			Dur("delay", delay).
			Int("attempt", updated.RetryCount).
			Msg("Scheduled retry for job")

		e.publish(ctx, interfaces.Event{
			Type: interfaces.EventJobRetry,
			Payload: map[string]interface{}{
				"job_id":  jobID,
				"delay":   delay.String(),
				"attempt": updated.RetryCount,
			},
		})
		return
	}

	e.logger.Warn().
		Str("job_id", jobID).
		Str("reason", reason).
		Int("error_count", record.ErrorCount).
		Msg("Job failed permanently")

	e.TransitionJob(ctx, jobID, models.StageFailed, map[string]interface{}{
		"failure_reason": reason,
	})
}

// retryDelay computes exponential backoff: base * 2^attempt, capped.
func (e *Engine) retryDelay(attempt int) time.Duration {
	delay := e.opts.RetryBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= e.opts.RetryMaxDelay {
			return e.opts.RetryMaxDelay
		}
	}
	if delay > e.opts.RetryMaxDelay {
		return e.opts.RetryMaxDelay
	}
	return delay
}

// resumeJob re-enters the last successfully completed stage after a
// retry delay. This is the only privileged mutation that bypasses the
// transition table: failure recovery must not be blocked by the forward
// edge set. A job that failed before completing any stage resumes at
// Idle.
func (e *Engine) resumeJob(ctx context.Context, jobID string) {
	record, err := e.store.Get(jobID)
	if err != nil {
		// Archived or cancelled before the retry fired.
		return
	}
	if record.Stage.IsTerminal() || record.Paused {
		return
	}

	resume := record.LastGoodStage()
	updated, err := e.store.MutateStage(jobID, record.Stage, resume, map[string]interface{}{
		"retry_attempt": true,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Retry re-entry lost a race, skipping")
		return
	}

	e.logger.Info().
		Str("job_id", jobID).
		Str("resume_stage", resume.String()).
		Msg("Retrying job from last good stage")

	e.afterCommit(ctx, jobID, record.Stage, resume, updated)
}

// CompleteJob marks a job completed and schedules its archival.
func (e *Engine) CompleteJob(ctx context.Context, jobID string, result map[string]interface{}) {
	patch := map[string]interface{}{
		"completion_result": result,
		"completion_time":   e.clock.Now().Format(time.RFC3339),
	}
	e.TransitionJob(ctx, jobID, models.StageCompleted, patch)
}

// CancelJob models cancellation as a transition to Cancelled. In-flight
// handlers are not aborted; they observe the stage cooperatively.
func (e *Engine) CancelJob(ctx context.Context, jobID string, reason string) {
	e.TransitionJob(ctx, jobID, models.StageCancelled, map[string]interface{}{
		"cancellation_reason": reason,
		"cancellation_time":   e.clock.Now().Format(time.RFC3339),
	})
}

// PauseJob suspends handler dispatch for the job and exempts it from the
// staleness sweep. The absolute age timeout still applies.
func (e *Engine) PauseJob(jobID string) error {
	if err := e.store.SetPaused(jobID, true); err != nil {
		return err
	}
	e.logger.Info().Str("job_id", jobID).Msg("Paused workflow for job")
	return nil
}

// ResumeJob lifts a pause.
func (e *Engine) ResumeJob(jobID string) error {
	if err := e.store.SetPaused(jobID, false); err != nil {
		return err
	}
	e.logger.Info().Str("job_id", jobID).Msg("Resumed workflow for job")
	return nil
}

// IsJobPaused reports the pause flag; unknown jobs are not paused.
func (e *Engine) IsJobPaused(jobID string) bool {
	record, err := e.store.Get(jobID)
	if err != nil {
		return false
	}
	return record.Paused
}

// GetJobState returns the job's current stage.
func (e *Engine) GetJobState(jobID string) (models.Stage, error) {
	record, err := e.store.Get(jobID)
	if err != nil {
		return "", err
	}
	return record.Stage, nil
}

// GetJobContext returns a clone of the full job record.
func (e *Engine) GetJobContext(jobID string) (*models.JobRecord, error) {
	return e.store.Get(jobID)
}

// GetActiveJobs returns a point-in-time snapshot of active job stages.
func (e *Engine) GetActiveJobs() map[string]models.Stage {
	return e.store.Snapshot()
}

// GetWorkflowStats aggregates active counts from the store and
// historical success/fail counts from the archive.
func (e *Engine) GetWorkflowStats(ctx context.Context) (*models.WorkflowStats, error) {
	snapshot := e.store.Snapshot()

	stats := &models.WorkflowStats{
		ActiveJobs:    len(snapshot),
		MaxConcurrent: e.opts.MaxConcurrentJobs,
		ByStage:       make(map[string]int),
		Timestamp:     e.clock.Now(),
	}
	for _, stage := range snapshot {
		stats.ByStage[stage.String()]++
	}

	if e.archive != nil {
		archived, err := e.archive.GetStats(ctx)
		if err != nil {
			e.logger.Error().Err(err).Msg("Error getting archived workflow stats")
		} else {
			stats.TotalHistorical = archived.Total
			stats.CompletedJobs = archived.Completed
			stats.FailedJobs = archived.Failed
			if archived.Total > 0 {
				stats.SuccessRate = float64(archived.Completed) / float64(archived.Total)
			}
		}
	}

	return stats, nil
}

// scheduleArchival queues deletion of a terminal job after its
// grace delay. The final state stays queryable until the task fires.
func (e *Engine) scheduleArchival(jobID string, stage models.Stage) {
	var grace time.Duration
	switch stage {
	case models.StageCompleted:
		grace = e.opts.CompletedGrace
	case models.StageFailed:
		grace = e.opts.FailedGrace
	case models.StageCancelled:
		grace = e.opts.CancelledGrace
	}

	e.timers.Push(&DeferredTask{
		FireAt: e.clock.Now().Add(grace),
		JobID:  jobID,
		Action: "archive",
		Run:    func(ctx context.Context) { e.archiveJob(ctx, jobID) },
	})

	e.logger.Debug().
		Str("job_id", jobID).
		Str("stage", stage.String()).
		Dur("grace", grace).
		Msg("Scheduled job archival")
}

// archiveJob persists the final record to the archive store and removes
// it from the active map.
func (e *Engine) archiveJob(ctx context.Context, jobID string) {
	record, err := e.store.Get(jobID)
	if err != nil {
		return
	}
	if !record.IsTerminal() {
		// The job restarted via a terminal->Idle edge; leave it alone.
		return
	}

	if e.archive != nil {
		now := e.clock.Now()
		record.ArchivedAt = &now
		if err := e.archive.ArchiveJob(ctx, record); err != nil {
			e.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to archive job record")
			// Still delete from the active store; the grace window is over.
		}
	}

	e.store.Delete(jobID)
	e.timers.CancelJob(jobID)

	e.logger.Info().Str("job_id", jobID).Str("stage", record.Stage.String()).Msg("Cleaned up job")
	e.publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobArchived,
		Payload: map[string]interface{}{"job_id": jobID, "stage": record.Stage.String()},
	})
}

func (e *Engine) publish(ctx context.Context, event interfaces.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish workflow event")
	}
}
