// -----------------------------------------------------------------------
// Transition Table - Declarative legal-edge set for the job lifecycle
// -----------------------------------------------------------------------

package workflow

import (
	"github.com/ternarybob/laboro/internal/models"
)

// GuardFunc is an optional predicate evaluated against the job record at
// transition time. A nil guard always passes.
type GuardFunc func(record *models.JobRecord) bool

type edge struct {
	from models.Stage
	to   models.Stage
}

// TransitionTable is the immutable set of legal stage edges. It is built
// once at startup and is the only source of truth for transition
// legality.
type TransitionTable struct {
	edges  map[edge]struct{}
	guards map[edge]GuardFunc
}

// NewTransitionTable declares the complete legal-edge set.
//
// In addition to the forward lifecycle edges, every non-terminal stage
// has edges to Failed and Cancelled so the failure path and operator
// cancellation are never blocked by the table, and every terminal stage
// has an edge back to Idle for the archival restart path.
func NewTransitionTable() *TransitionTable {
	t := &TransitionTable{
		edges:  make(map[edge]struct{}),
		guards: make(map[edge]GuardFunc),
	}

	// Forward lifecycle edges.
	t.add(models.StageIdle, models.StageSearching)

	t.add(models.StageSearching, models.StageAnalyzing)
	t.add(models.StageSearching, models.StageIdle)

	t.add(models.StageAnalyzing, models.StageApplying)
	t.add(models.StageAnalyzing, models.StageSearching)
	t.add(models.StageAnalyzing, models.StageIdle)

	t.add(models.StageApplying, models.StageWaitingResponse)

	t.add(models.StageWaitingResponse, models.StageAccepted)

	t.add(models.StageAccepted, models.StageInProgress)

	t.add(models.StageInProgress, models.StageCommunicating)
	t.add(models.StageInProgress, models.StageDelivering)

	t.add(models.StageCommunicating, models.StageInProgress)
	t.add(models.StageCommunicating, models.StageDelivering)

	t.add(models.StageDelivering, models.StageSubmitted)

	t.add(models.StageSubmitted, models.StageRevisionRequested)
	t.add(models.StageSubmitted, models.StageCompleted)

	t.add(models.StageRevisionRequested, models.StageInProgress)

	// Failure and cancellation edges from every non-terminal stage.
	for _, stage := range models.AllStages {
		if stage.IsTerminal() {
			continue
		}
		t.add(stage, models.StageFailed)
		t.add(stage, models.StageCancelled)
	}

	// Terminal stages transition back to Idle for archival cleanup.
	t.add(models.StageCompleted, models.StageIdle)
	t.add(models.StageFailed, models.StageIdle)
	t.add(models.StageCancelled, models.StageIdle)

	return t
}

func (t *TransitionTable) add(from, to models.Stage) {
	t.edges[edge{from, to}] = struct{}{}
}

// WithGuard attaches a guard predicate to an existing edge. Returns the
// table for chaining during construction.
func (t *TransitionTable) WithGuard(from, to models.Stage, guard GuardFunc) *TransitionTable {
	key := edge{from, to}
	if _, ok := t.edges[key]; ok {
		t.guards[key] = guard
	}
	return t
}

// IsLegal reports whether the (from, to) edge exists in the table.
// O(1), no side effects.
func (t *TransitionTable) IsLegal(from, to models.Stage) bool {
	_, ok := t.edges[edge{from, to}]
	return ok
}

// GuardAllows evaluates the edge's guard against the record. Edges
// without a guard always pass.
func (t *TransitionTable) GuardAllows(from, to models.Stage, record *models.JobRecord) bool {
	guard, ok := t.guards[edge{from, to}]
	if !ok || guard == nil {
		return true
	}
	return guard(record)
}

// EdgeCount returns the number of declared edges.
func (t *TransitionTable) EdgeCount() int {
	return len(t.edges)
}
