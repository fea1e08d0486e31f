// -----------------------------------------------------------------------
// Job Listing - Parsed gig posting from the platform search pages
// -----------------------------------------------------------------------

package models

import "time"

// JobListing is a scraped and parsed gig posting. The scraper produces
// these; the workflow engine carries them opaquely inside job payloads.
type JobListing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Payment     float64   `json:"payment"` // yen
	Deadline    string    `json:"deadline,omitempty"`
	PostedAt    time.Time `json:"posted_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// MatchResult is the matcher's verdict on a listing.
type MatchResult struct {
	ShouldApply bool    `json:"should_apply"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
	Proposal    string  `json:"proposal,omitempty"` // generated application text
}

// Message is one client message attached to an active job.
type Message struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	Read       bool      `json:"read"`
}

// TaskResult is the output of working a gig task, ready for delivery.
type TaskResult struct {
	JobID       string    `json:"job_id"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	Revision    int       `json:"revision"`
	CompletedAt time.Time `json:"completed_at"`
}
