package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/models"
)

func TestSupervisor_StaleJobForceFailed(t *testing.T) {
	engine, clk := newTestEngine(t)
	sup := NewSupervisor(engine, common.GetLogger())
	ctx := context.Background()

	jobID := mustStart(t, engine, "job_stale")
	mustTransition(t, engine, jobID, models.StageSearching)

	clk.Advance(31 * time.Minute)
	sup.Sweep(ctx)

	record, err := engine.GetJobContext(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, record.Stage)
	assert.Equal(t, "stale - no updates", record.LastError)
}

func TestSupervisor_PassiveStagesExemptFromStaleness(t *testing.T) {
	engine, clk := newTestEngine(t)
	sup := NewSupervisor(engine, common.GetLogger())
	ctx := context.Background()

	// Waiting on the client is expected to be quiet for a long time.
	jobID := mustStart(t, engine, "job_waiting")
	mustTransition(t, engine, jobID,
		models.StageSearching, models.StageAnalyzing, models.StageApplying,
		models.StageWaitingResponse)

	clk.Advance(3 * time.Hour)
	sup.Sweep(ctx)

	stage, err := engine.GetJobState(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StageWaitingResponse, stage)
}

func TestSupervisor_PausedJobExemptFromStaleness(t *testing.T) {
	engine, clk := newTestEngine(t)
	sup := NewSupervisor(engine, common.GetLogger())
	ctx := context.Background()

	jobID := mustStart(t, engine, "job_paused")
	mustTransition(t, engine, jobID, models.StageSearching)
	require.NoError(t, engine.PauseJob(jobID))

	clk.Advance(3 * time.Hour)
	sup.Sweep(ctx)

	stage, err := engine.GetJobState(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StageSearching, stage)
}

func TestSupervisor_AbsoluteTimeoutAppliesEvenWhenPassiveOrPaused(t *testing.T) {
	engine, clk := newTestEngine(t)
	sup := NewSupervisor(engine, common.GetLogger())
	ctx := context.Background()

	waiting := mustStart(t, engine, "job_old_waiting")
	mustTransition(t, engine, waiting,
		models.StageSearching, models.StageAnalyzing, models.StageApplying,
		models.StageWaitingResponse)

	paused := mustStart(t, engine, "job_old_paused")
	mustTransition(t, engine, paused, models.StageSearching)
	require.NoError(t, engine.PauseJob(paused))

	clk.Advance(25 * time.Hour)
	sup.Sweep(ctx)

	for _, jobID := range []string{waiting, paused} {
		record, err := engine.GetJobContext(jobID)
		require.NoError(t, err)
		assert.Equal(t, models.StageFailed, record.Stage, "job %s", jobID)
		assert.Equal(t, "job timeout", record.LastError)
	}
}

func TestSupervisor_SweepSkipsTerminalJobs(t *testing.T) {
	engine, clk := newTestEngine(t)
	sup := NewSupervisor(engine, common.GetLogger())
	ctx := context.Background()

	jobID := mustStart(t, engine, "job_done")
	engine.CancelJob(ctx, jobID, "test")

	record, err := engine.GetJobContext(jobID)
	require.NoError(t, err)
	errorsBefore := record.ErrorCount

	// Stale and aged, but terminal jobs are left to their archival timer.
	clk.Advance(25 * time.Hour)
	for _, task := range engine.Timers().PopDue(clk.Now()) {
		_ = task // drop the archival so the record stays inspectable
	}
	sup.Sweep(ctx)

	record, err = engine.GetJobContext(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, record.Stage)
	assert.Equal(t, errorsBefore, record.ErrorCount)
}

func TestSupervisor_SweepRunsDueDeferredTasks(t *testing.T) {
	engine, clk := newTestEngine(t)
	sup := NewSupervisor(engine, common.GetLogger())
	ctx := context.Background()

	var fired bool
	engine.Timers().Push(&DeferredTask{
		FireAt: clk.Now().Add(10 * time.Minute),
		JobID:  "job_x",
		Action: "retry",
		Run:    func(context.Context) { fired = true },
	})

	sup.Sweep(ctx)
	assert.False(t, fired, "task is not due yet")

	clk.Advance(11 * time.Minute)
	sup.Sweep(ctx)
	assert.True(t, fired)
}
