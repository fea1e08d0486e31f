package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerQueue_PopDueReturnsInFireOrder(t *testing.T) {
	tq := NewTimerQueue()
	base := time.Now()

	noop := func(context.Context) {}
	tq.Push(&DeferredTask{FireAt: base.Add(3 * time.Minute), JobID: "job_c", Action: "retry", Run: noop})
	tq.Push(&DeferredTask{FireAt: base.Add(1 * time.Minute), JobID: "job_a", Action: "retry", Run: noop})
	tq.Push(&DeferredTask{FireAt: base.Add(2 * time.Minute), JobID: "job_b", Action: "archive", Run: noop})

	due := tq.PopDue(base.Add(2 * time.Minute))
	assert.Len(t, due, 2)
	assert.Equal(t, "job_a", due[0].JobID)
	assert.Equal(t, "job_b", due[1].JobID)
	assert.Equal(t, 1, tq.Len())

	// Nothing new became due.
	assert.Empty(t, tq.PopDue(base.Add(2*time.Minute)))

	due = tq.PopDue(base.Add(time.Hour))
	assert.Len(t, due, 1)
	assert.Equal(t, "job_c", due[0].JobID)
	assert.Equal(t, 0, tq.Len())
}

func TestTimerQueue_CancelJobDropsAllTasksForJob(t *testing.T) {
	tq := NewTimerQueue()
	base := time.Now()

	noop := func(context.Context) {}
	tq.Push(&DeferredTask{FireAt: base.Add(time.Minute), JobID: "job_a", Action: "retry", Run: noop})
	tq.Push(&DeferredTask{FireAt: base.Add(2 * time.Minute), JobID: "job_a", Action: "archive", Run: noop})
	tq.Push(&DeferredTask{FireAt: base.Add(3 * time.Minute), JobID: "job_b", Action: "retry", Run: noop})

	removed := tq.CancelJob("job_a")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, tq.Len())

	due := tq.PopDue(base.Add(time.Hour))
	assert.Len(t, due, 1)
	assert.Equal(t, "job_b", due[0].JobID)
}

func TestTimerQueue_NextFireAt(t *testing.T) {
	tq := NewTimerQueue()
	assert.True(t, tq.NextFireAt().IsZero())

	at := time.Now().Add(time.Minute)
	tq.Push(&DeferredTask{FireAt: at, JobID: "job_a", Action: "retry", Run: func(context.Context) {}})
	assert.Equal(t, at, tq.NextFireAt())
}
