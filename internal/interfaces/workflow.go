// -----------------------------------------------------------------------
// Workflow Interfaces - Engine contract and handler types
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/laboro/internal/models"
)

// HandlerFunc is a stage-entry callback. Handlers are invoked after a
// transition has committed, sequentially in registration order, and drive
// further progress by calling TransitionJob/FailJob themselves. A returned
// error is logged by the engine; it never rolls back the transition.
type HandlerFunc func(ctx context.Context, jobID string, payload map[string]interface{}) error

// ObserverFunc is invoked on every committed transition, after the stage
// handlers. Observers audit; they do not gate.
type ObserverFunc func(ctx context.Context, jobID string, from, to models.Stage, payload map[string]interface{}) error

// WorkflowEngine is the single authority for job lifecycle transitions.
type WorkflowEngine interface {
	// StartJobWorkflow admits a new job in the Idle stage. The payload is
	// opaque collaborator data. Returns the job ID, or ErrDuplicateJob /
	// ErrCapacityExceeded.
	StartJobWorkflow(ctx context.Context, jobID string, payload map[string]interface{}) (string, error)

	// TransitionJob validates the edge against the transition table,
	// commits the mutation, then dispatches handlers and observers.
	// Illegal edges and unknown jobs are rejected silently (logged,
	// returns false, no mutation).
	TransitionJob(ctx context.Context, jobID string, to models.Stage, patch map[string]interface{}) bool

	// FailJob records a failure. With retry enabled and attempts left it
	// schedules a stage-resuming retry after exponential backoff;
	// otherwise the job transitions to Failed permanently.
	FailJob(ctx context.Context, jobID string, reason string, retry bool)

	// CompleteJob transitions the job to Completed and schedules archival.
	CompleteJob(ctx context.Context, jobID string, result map[string]interface{})

	// CancelJob transitions the job to Cancelled. In-flight handlers are
	// not aborted; they are expected to check the stage cooperatively.
	CancelJob(ctx context.Context, jobID string, reason string)

	// PauseJob suspends handler dispatch for the job and exempts it from
	// the staleness sweep. ResumeJob lifts the suspension.
	PauseJob(jobID string) error
	ResumeJob(jobID string) error
	IsJobPaused(jobID string) bool

	// Registration. Handlers fire on entry to their stage; observers fire
	// on every edge.
	RegisterStageHandler(stage models.Stage, handler HandlerFunc)
	RegisterObserver(observer ObserverFunc)

	// Queries.
	GetJobState(jobID string) (models.Stage, error)
	GetJobContext(jobID string) (*models.JobRecord, error)
	GetActiveJobs() map[string]models.Stage
	GetWorkflowStats(ctx context.Context) (*models.WorkflowStats, error)
}
