// -----------------------------------------------------------------------
// Timer Queue - Min-heap of deferred supervisor actions
// -----------------------------------------------------------------------

package workflow

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Clock abstracts wall-clock time so supervisor behavior is testable
// without real waits.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock returns a Clock backed by time.Now.
func NewRealClock() Clock { return realClock{} }

// DeferredTask is a scheduled action against one job: a retry re-entry
// or an archival. Tasks are drained by the supervisor sweep, which makes
// retry scheduling inspectable instead of hiding it in sleeping
// goroutines.
type DeferredTask struct {
	FireAt time.Time
	JobID  string
	Action string // "retry" or "archive", for logging and inspection
	Run    func(ctx context.Context)

	index int
}

type taskHeap []*DeferredTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].FireAt.Before(h[j].FireAt) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x interface{}) { t := x.(*DeferredTask); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// TimerQueue is a synchronized min-heap of deferred tasks keyed by fire
// time.
type TimerQueue struct {
	mu    sync.Mutex
	tasks taskHeap
}

// NewTimerQueue creates an empty timer queue.
func NewTimerQueue() *TimerQueue {
	tq := &TimerQueue{}
	heap.Init(&tq.tasks)
	return tq
}

// Push schedules a deferred task.
func (tq *TimerQueue) Push(task *DeferredTask) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	heap.Push(&tq.tasks, task)
}

// PopDue removes and returns all tasks whose fire time is at or before
// now, in fire-time order.
func (tq *TimerQueue) PopDue(now time.Time) []*DeferredTask {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	var due []*DeferredTask
	for tq.tasks.Len() > 0 && !tq.tasks[0].FireAt.After(now) {
		due = append(due, heap.Pop(&tq.tasks).(*DeferredTask))
	}
	return due
}

// CancelJob drops all pending tasks for a job, e.g. when it is archived
// or cancelled before a scheduled retry fires.
func (tq *TimerQueue) CancelJob(jobID string) int {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	removed := 0
	for i := tq.tasks.Len() - 1; i >= 0; i-- {
		if tq.tasks[i].JobID == jobID {
			heap.Remove(&tq.tasks, i)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending tasks.
func (tq *TimerQueue) Len() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return tq.tasks.Len()
}

// NextFireAt returns the earliest pending fire time, or zero time if the
// queue is empty.
func (tq *TimerQueue) NextFireAt() time.Time {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	if tq.tasks.Len() == 0 {
		return time.Time{}
	}
	return tq.tasks[0].FireAt
}
