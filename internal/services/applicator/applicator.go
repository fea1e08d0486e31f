// -----------------------------------------------------------------------
// Job Applicator - Submits applications to the platform apply endpoint
// -----------------------------------------------------------------------

package applicator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/ternarybob/laboro/internal/services/scraper"
)

// fallbackProposal is used when the matcher produced no proposal text.
const fallbackProposal = "こんにちは！様々なタスクに対応可能なアシスタントです。" +
	"データ処理、翻訳、リサーチ、コンテンツ作成など幅広く対応いたします。" +
	"プロジェクトの詳細についてお聞かせください。"

type applyRequest struct {
	JobID             string  `json:"job_id"`
	Proposal          string  `json:"proposal"`
	BidAmount         float64 `json:"bid_amount"`
	EstimatedDelivery string  `json:"estimated_delivery"`
	Message           string  `json:"message"`
}

type applyResponse struct {
	ApplicationID string `json:"application_id"`
}

// Service submits job applications. It remembers submitted job IDs so
// stage-resuming retries do not double-apply, and it enforces a daily
// application cap that the scheduler resets at midnight.
type Service struct {
	client *scraper.Client
	logger arbor.ILogger

	mu         sync.Mutex
	applied    map[string]string // job ID -> application ID
	dailyCount int
	dailyLimit int
}

func NewService(client *scraper.Client, dailyLimit int, logger arbor.ILogger) *Service {
	return &Service{
		client:     client,
		logger:     logger,
		applied:    make(map[string]string),
		dailyLimit: dailyLimit,
	}
}

// ApplyForJob submits one application. Calling it again for the same
// job ID is a no-op.
func (s *Service) ApplyForJob(ctx context.Context, listing *models.JobListing, match *models.MatchResult) error {
	if listing == nil || listing.ID == "" {
		return fmt.Errorf("listing with ID is required")
	}

	s.mu.Lock()
	if appID, ok := s.applied[listing.ID]; ok {
		s.mu.Unlock()
		s.logger.Debug().
			Str("job_id", listing.ID).
			Str("application_id", appID).
			Msg("Application already submitted, skipping")
		return nil
	}
	if s.dailyLimit > 0 && s.dailyCount >= s.dailyLimit {
		s.mu.Unlock()
		return fmt.Errorf("daily application limit of %d reached", s.dailyLimit)
	}
	s.mu.Unlock()

	proposal := fallbackProposal
	if match != nil && match.Proposal != "" {
		proposal = match.Proposal
	}

	body, err := json.Marshal(applyRequest{
		JobID:             listing.ID,
		Proposal:          proposal,
		BidAmount:         listing.Payment,
		EstimatedDelivery: time.Now().AddDate(0, 0, 3).Format("2006-01-02"),
		Message:           proposal,
	})
	if err != nil {
		return fmt.Errorf("failed to encode application: %w", err)
	}

	raw, err := s.client.PostJSON(ctx, fmt.Sprintf("/api/jobs/%s/apply", listing.ID), body)
	if err != nil {
		return fmt.Errorf("application submission failed for job %s: %w", listing.ID, err)
	}

	var resp applyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		// Some platform responses are plain HTML confirmations; the
		// submission still counts.
		resp.ApplicationID = ""
	}

	s.mu.Lock()
	s.applied[listing.ID] = resp.ApplicationID
	s.dailyCount++
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", listing.ID).
		Str("application_id", resp.ApplicationID).
		Str("title", listing.Title).
		Msg("Submitted job application")

	return nil
}

// HasApplied reports whether an application was already submitted for
// the job.
func (s *Service) HasApplied(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.applied[jobID]
	return ok
}

// DailyCount returns the number of applications submitted since the
// last reset.
func (s *Service) DailyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyCount
}

// ResetDailyCount zeroes the daily application counter. The scheduler
// calls this at the start of each day.
func (s *Service) ResetDailyCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyCount = 0
}

var _ interfaces.JobApplicator = (*Service)(nil)
