package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/models"
)

// fakeClock drives retry, archival and sweep scheduling in tests
// without real waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Starting at wall time keeps the fake clock consistent with the
// time.Now() stamps the store writes into records.
func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions() Options {
	return Options{
		MaxConcurrentJobs: 5,
		MaxRetries:        3,
		RetryBaseDelay:    5 * time.Minute,
		RetryMaxDelay:     time.Hour,
		StaleThreshold:    30 * time.Minute,
		MaxJobAge:         24 * time.Hour,
		SweepInterval:     time.Minute,
		CompletedGrace:    time.Hour,
		FailedGrace:       2 * time.Hour,
		CancelledGrace:    30 * time.Minute,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	engine := NewEngine(testOptions(), nil, nil, common.GetLogger()).WithClock(clk)
	return engine, clk
}

func mustStart(t *testing.T, e *Engine, jobID string) string {
	t.Helper()
	id, err := e.StartJobWorkflow(context.Background(), jobID, nil)
	require.NoError(t, err)
	return id
}

func mustTransition(t *testing.T, e *Engine, jobID string, stages ...models.Stage) {
	t.Helper()
	for _, to := range stages {
		require.True(t, e.TransitionJob(context.Background(), jobID, to, nil),
			"expected legal transition to %s", to)
	}
}
