// -----------------------------------------------------------------------
// Job Record - Per-job mutable workflow state and audit history
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TransitionRecord is one append-only history entry for a job.
// History entries are never rewritten or removed while the job is active.
type TransitionRecord struct {
	From        Stage     `json:"from"`
	To          Stage     `json:"to"`
	At          time.Time `json:"at"`
	PayloadKeys []string  `json:"payload_keys,omitempty"` // keys patched during this transition
}

// JobRecord holds the complete workflow state for one active job.
// The record is mutated exclusively through the workflow engine; its
// Payload is opaque collaborator data the engine never interprets.
type JobRecord struct {
	ID            string                 `json:"id" badgerhold:"key"`
	Stage         Stage                  `json:"stage"`
	Payload       map[string]interface{} `json:"payload"`
	CreatedAt     time.Time              `json:"created_at"`
	LastUpdatedAt time.Time              `json:"last_updated_at"`
	History       []TransitionRecord     `json:"history"`
	ErrorCount    int                    `json:"error_count"`
	RetryCount    int                    `json:"retry_count"`
	LastError     string                 `json:"last_error,omitempty"`
	Paused        bool                   `json:"paused"`

	// ArchivedAt is set when the record moves to the archive store.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// NewJobRecord creates a job record in the Idle stage with the supplied
// payload. A nil payload is normalized to an empty map.
func NewJobRecord(jobID string, payload map[string]interface{}) *JobRecord {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	now := time.Now()
	return &JobRecord{
		ID:            jobID,
		Stage:         StageIdle,
		Payload:       payload,
		CreatedAt:     now,
		LastUpdatedAt: now,
		History:       []TransitionRecord{},
	}
}

// IsTerminal returns true if the job's current stage ends its lifecycle.
func (j *JobRecord) IsTerminal() bool {
	return j.Stage.IsTerminal()
}

// AppendTransition records a committed transition in the history and
// bumps the last-updated timestamp.
func (j *JobRecord) AppendTransition(from, to Stage, patch map[string]interface{}) {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now()
	j.History = append(j.History, TransitionRecord{
		From:        from,
		To:          to,
		At:          now,
		PayloadKeys: keys,
	})
	j.LastUpdatedAt = now
}

// LastGoodStage returns the stage the job had successfully finished
// before entering its current one. The reverse scan excludes the most
// recent history entry, since that edge led into the stage whose work
// failed. A job that fails before completing any stage resumes at Idle.
func (j *JobRecord) LastGoodStage() Stage {
	for i := len(j.History) - 2; i >= 0; i-- {
		to := j.History[i].To
		if to != StageFailed && to != StageCancelled {
			return to
		}
	}
	return StageIdle
}

// Clone creates a deep copy of the record. Snapshots handed to callers
// are clones so store internals are never aliased.
func (j *JobRecord) Clone() *JobRecord {
	payloadCopy := make(map[string]interface{}, len(j.Payload))
	for k, v := range j.Payload {
		payloadCopy[k] = v
	}

	historyCopy := make([]TransitionRecord, len(j.History))
	copy(historyCopy, j.History)

	clone := *j
	clone.Payload = payloadCopy
	clone.History = historyCopy
	return &clone
}

// ToJSON serializes the record for archival. Stages serialize as string
// tags and timestamps as RFC 3339, so an external store can reconstruct
// engine state on restart.
func (j *JobRecord) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job record: %w", err)
	}
	return data, nil
}

// JobRecordFromJSON deserializes an archived job record.
func JobRecordFromJSON(data []byte) (*JobRecord, error) {
	var record JobRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
	}
	return &record, nil
}
