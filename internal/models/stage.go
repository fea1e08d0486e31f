// -----------------------------------------------------------------------
// Workflow Stage - Fixed lifecycle state enumeration for gig jobs
// -----------------------------------------------------------------------

package models

import "fmt"

// Stage represents a single state in the job workflow lifecycle.
// The set is fixed; jobs only ever move along edges declared in the
// workflow transition table.
type Stage string

// Stage constants, in lifecycle order.
const (
	StageIdle              Stage = "idle"
	StageSearching         Stage = "searching"
	StageAnalyzing         Stage = "analyzing"
	StageApplying          Stage = "applying"
	StageWaitingResponse   Stage = "waiting_response"
	StageAccepted          Stage = "accepted"
	StageInProgress        Stage = "in_progress"
	StageCommunicating     Stage = "communicating"
	StageDelivering        Stage = "delivering"
	StageSubmitted         Stage = "submitted"
	StageRevisionRequested Stage = "revision_requested"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
	StageCancelled         Stage = "cancelled"
)

// AllStages lists every stage in declaration order.
var AllStages = []Stage{
	StageIdle,
	StageSearching,
	StageAnalyzing,
	StageApplying,
	StageWaitingResponse,
	StageAccepted,
	StageInProgress,
	StageCommunicating,
	StageDelivering,
	StageSubmitted,
	StageRevisionRequested,
	StageCompleted,
	StageFailed,
	StageCancelled,
}

// ParseStage converts a string tag into a Stage.
func ParseStage(s string) (Stage, error) {
	for _, stage := range AllStages {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown workflow stage: %s", s)
}

// String returns the serialized stage tag.
func (s Stage) String() string {
	return string(s)
}

// IsValid checks whether the stage is one of the declared constants.
func (s Stage) IsValid() bool {
	for _, stage := range AllStages {
		if s == stage {
			return true
		}
	}
	return false
}

// IsTerminal returns true for stages that end a job's lifecycle.
// Terminal jobs remain queryable until the supervisor archives them.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// IsPassive returns true for stages where the absence of updates is
// expected (the job is waiting on the other side of the platform).
// Passive stages are exempt from the supervisor's staleness sweep.
func (s Stage) IsPassive() bool {
	return s == StageWaitingResponse || s == StageSubmitted
}
