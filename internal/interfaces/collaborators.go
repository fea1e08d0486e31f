// -----------------------------------------------------------------------
// Collaborator Interfaces - External services driven by stage handlers
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/laboro/internal/models"
)

// JobScraper discovers gig listings on the platform. Implementations own
// HTTP transport, rate limiting and HTML parsing.
type JobScraper interface {
	// SearchJobs fetches and parses the current listing page(s).
	SearchJobs(ctx context.Context) ([]*models.JobListing, error)

	// FetchJobDetail loads the full description for one listing.
	FetchJobDetail(ctx context.Context, listing *models.JobListing) (*models.JobListing, error)
}

// JobMatcher scores a listing against the worker profile and decides
// whether to apply.
type JobMatcher interface {
	AnalyzeJobMatch(ctx context.Context, listing *models.JobListing) (*models.MatchResult, error)
}

// JobApplicator submits applications. ApplyForJob must be idempotent for
// a given job ID: stage-resuming retries may re-run it.
type JobApplicator interface {
	ApplyForJob(ctx context.Context, listing *models.JobListing, match *models.MatchResult) error
}

// MessageClient exchanges messages with the client on the platform.
type MessageClient interface {
	FetchMessages(ctx context.Context, jobID string) ([]*models.Message, error)
	SendMessage(ctx context.Context, jobID string, body string) error
}

// MessageResponder drafts replies to client messages.
type MessageResponder interface {
	GenerateResponse(ctx context.Context, jobID string, message *models.Message) (string, error)
}

// TaskWorker performs the actual gig work for an accepted job.
// Implementations must check for prior partial completion: retries
// re-enter the stage, they do not replay it.
type TaskWorker interface {
	ProcessTask(ctx context.Context, jobID string, listing *models.JobListing, revisionNotes string) (*models.TaskResult, error)
}

// DeliveryClient submits completed work back to the platform.
type DeliveryClient interface {
	DeliverWork(ctx context.Context, jobID string, result *models.TaskResult) error
}
