package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/models"
)

func TestOrchestrator_StartStopIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)
	orch := NewOrchestrator(engine, common.GetLogger())
	ctx := context.Background()

	assert.False(t, orch.IsRunning())

	orch.Start(ctx)
	orch.Start(ctx)
	assert.True(t, orch.IsRunning())

	orch.Stop()
	orch.Stop()
	assert.False(t, orch.IsRunning())

	// Restartable after a stop.
	orch.Start(ctx)
	assert.True(t, orch.IsRunning())
	orch.Stop()
}

func TestOrchestrator_GetSystemStatus(t *testing.T) {
	engine, _ := newTestEngine(t)
	orch := NewOrchestrator(engine, common.GetLogger())
	ctx := context.Background()

	jobID := mustStart(t, engine, "job_status")
	mustTransition(t, engine, jobID, models.StageSearching)

	status, err := orch.GetSystemStatus(ctx)
	require.NoError(t, err)

	assert.Equal(t, false, status["orchestrator_running"])
	stats, ok := status["workflow"].(*models.WorkflowStats)
	require.True(t, ok)
	assert.Equal(t, 1, stats.ActiveJobs)
	assert.NotEmpty(t, status["timestamp"])
}
