package workflow

import "errors"

// Error kinds surfaced by the workflow engine and store. Callers branch
// with errors.Is; nothing in this package panics across the API boundary.
var (
	// ErrJobNotFound is returned when an operation references an unknown
	// or already-archived job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when creating a job whose ID is already
	// active.
	ErrDuplicateJob = errors.New("job already active")

	// ErrCapacityExceeded is returned when admission control rejects a new
	// job because maxConcurrentJobs records are already active.
	ErrCapacityExceeded = errors.New("maximum concurrent jobs reached")

	// ErrInvalidTransition is returned when a requested edge is not in the
	// transition table.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrJobBusy is returned when a stage commit loses a race because the
	// job's stage moved under a concurrent transition.
	ErrJobBusy = errors.New("job busy with concurrent transition")
)
