// -----------------------------------------------------------------------
// Agent - Binds platform collaborators to workflow stage handlers
// -----------------------------------------------------------------------

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/ternarybob/laboro/internal/services/scheduler"
	"github.com/ternarybob/laboro/internal/workflow"
)

// Payload keys the agent reads and writes on job records.
const (
	payloadListing       = "listing"
	payloadMatch         = "match"
	payloadTaskResult    = "task_result"
	payloadRevisionNotes = "revision_notes"
	payloadPendingMsg    = "pending_message"
)

// dailyResetter is the slice of the applicator the scheduler reset needs.
type dailyResetter interface {
	ResetDailyCount()
}

// Agent drives the gig lifecycle. The engine owns the state machine;
// the agent supplies the stage handlers that call out to the platform
// collaborators and push each job forward.
type Agent struct {
	engine     interfaces.WorkflowEngine
	scraper    interfaces.JobScraper
	matcher    interfaces.JobMatcher
	applicator interfaces.JobApplicator
	messages   interfaces.MessageClient
	responder  interfaces.MessageResponder
	worker     interfaces.TaskWorker
	delivery   interfaces.DeliveryClient
	events     interfaces.EventService
	resetter   dailyResetter
	cfg        *common.Config
	logger     arbor.ILogger
}

type Collaborators struct {
	Scraper    interfaces.JobScraper
	Matcher    interfaces.JobMatcher
	Applicator interfaces.JobApplicator
	Messages   interfaces.MessageClient
	Responder  interfaces.MessageResponder
	Worker     interfaces.TaskWorker
	Delivery   interfaces.DeliveryClient
}

func New(engine interfaces.WorkflowEngine, collab Collaborators, events interfaces.EventService, cfg *common.Config, logger arbor.ILogger) *Agent {
	a := &Agent{
		engine:     engine,
		scraper:    collab.Scraper,
		matcher:    collab.Matcher,
		applicator: collab.Applicator,
		messages:   collab.Messages,
		responder:  collab.Responder,
		worker:     collab.Worker,
		delivery:   collab.Delivery,
		events:     events,
		cfg:        cfg,
		logger:     logger,
	}
	if r, ok := collab.Applicator.(dailyResetter); ok {
		a.resetter = r
	}
	a.registerHandlers()
	return a
}

func (a *Agent) registerHandlers() {
	a.engine.RegisterStageHandler(models.StageSearching, a.handleSearching)
	a.engine.RegisterStageHandler(models.StageAnalyzing, a.handleAnalyzing)
	a.engine.RegisterStageHandler(models.StageApplying, a.handleApplying)
	a.engine.RegisterStageHandler(models.StageAccepted, a.handleAccepted)
	a.engine.RegisterStageHandler(models.StageInProgress, a.handleInProgress)
	a.engine.RegisterStageHandler(models.StageCommunicating, a.handleCommunicating)
	a.engine.RegisterStageHandler(models.StageDelivering, a.handleDelivering)
	a.engine.RegisterStageHandler(models.StageRevisionRequested, a.handleRevisionRequested)
	// WaitingResponse and Submitted are passive. The message poller
	// moves jobs out of them when the client responds.
}

// SearchAndApply runs one search sweep: fetch listings, admit each as a
// new job and hand it to the workflow.
func (a *Agent) SearchAndApply(ctx context.Context) error {
	listings, err := a.scraper.SearchJobs(ctx)
	if err != nil {
		return fmt.Errorf("job search failed: %w", err)
	}

	limit := a.cfg.Scheduler.MaxJobsPerSearch
	if limit > 0 && len(listings) > limit {
		listings = listings[:limit]
	}

	admitted := 0
	for _, listing := range listings {
		jobID, err := a.engine.StartJobWorkflow(ctx, listing.ID, map[string]interface{}{
			payloadListing: listing,
		})
		if err != nil {
			if errors.Is(err, workflow.ErrDuplicateJob) {
				continue
			}
			if errors.Is(err, workflow.ErrCapacityExceeded) {
				a.logger.Warn().Msg("Job capacity reached, deferring remaining listings")
				break
			}
			a.logger.Warn().Err(err).Str("listing_id", listing.ID).Msg("Failed to admit listing")
			continue
		}
		admitted++
		a.engine.TransitionJob(ctx, jobID, models.StageSearching, nil)
	}

	a.logger.Info().
		Int("found", len(listings)).
		Int("admitted", admitted).
		Msg("Search sweep finished")

	if a.events != nil {
		_ = a.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventSearchSweep,
			Payload: map[string]interface{}{"found": len(listings), "admitted": admitted},
		})
	}

	return nil
}

// PollMessages checks the conversations of every active job and reacts
// to client responses: acceptances, revision requests, approvals and
// plain messages that need a reply.
func (a *Agent) PollMessages(ctx context.Context) error {
	for jobID, stage := range a.engine.GetActiveJobs() {
		switch stage {
		case models.StageWaitingResponse, models.StageSubmitted, models.StageInProgress:
		default:
			continue
		}

		msgs, err := a.messages.FetchMessages(ctx, jobID)
		if err != nil {
			a.logger.Warn().Err(err).Str("job_id", jobID).Msg("Message fetch failed")
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		a.reactToMessages(ctx, jobID, stage, msgs)
	}
	return nil
}

func (a *Agent) reactToMessages(ctx context.Context, jobID string, stage models.Stage, msgs []*models.Message) {
	latest := msgs[len(msgs)-1]

	if a.events != nil {
		_ = a.events.Publish(ctx, interfaces.Event{Type: interfaces.EventMessage, Payload: latest})
	}

	switch stage {
	case models.StageWaitingResponse:
		switch classifyOutcome(latest.Body) {
		case outcomeAccepted:
			a.engine.TransitionJob(ctx, jobID, models.StageAccepted, map[string]interface{}{
				payloadPendingMsg: latest,
			})
		case outcomeRejected:
			a.engine.CancelJob(ctx, jobID, "application rejected by client")
		default:
			// Still undecided. Leave the job waiting.
		}

	case models.StageSubmitted:
		switch classifyOutcome(latest.Body) {
		case outcomeRevision:
			a.engine.TransitionJob(ctx, jobID, models.StageRevisionRequested, map[string]interface{}{
				payloadRevisionNotes: latest.Body,
			})
		case outcomeApproved:
			a.engine.CompleteJob(ctx, jobID, map[string]interface{}{
				payloadPendingMsg: latest,
			})
		default:
			a.engine.TransitionJob(ctx, jobID, models.StageCommunicating, map[string]interface{}{
				payloadPendingMsg: latest,
			})
		}

	case models.StageInProgress:
		a.engine.TransitionJob(ctx, jobID, models.StageCommunicating, map[string]interface{}{
			payloadPendingMsg: latest,
		})
	}
}

// RegisterScheduledTasks wires the agent's periodic work into the
// scheduler: the search sweep, the message poll and the midnight
// application-counter reset.
func (a *Agent) RegisterScheduledTasks(sched *scheduler.Service) error {
	if err := sched.RegisterTask("job-search", a.cfg.Scheduler.SearchSchedule, a.SearchAndApply); err != nil {
		return err
	}
	if err := sched.RegisterTask("message-poll", "@every "+a.cfg.Scheduler.MessagePollingTime, a.PollMessages); err != nil {
		return err
	}
	return sched.RegisterTask("daily-reset", "0 0 * * *", a.ResetDailyCounters)
}

// ResetDailyCounters zeroes the applicator's daily application count.
func (a *Agent) ResetDailyCounters(ctx context.Context) error {
	if a.resetter != nil {
		a.resetter.ResetDailyCount()
		a.logger.Info().Msg("Daily application counter reset")
	}
	return nil
}

// Stage handlers. Each runs after its transition has committed and
// pushes the job to the next stage or fails it.

func (a *Agent) handleSearching(ctx context.Context, jobID string, payload map[string]interface{}) error {
	// Admission already captured the listing. Move straight to analysis.
	a.engine.TransitionJob(ctx, jobID, models.StageAnalyzing, nil)
	return nil
}

func (a *Agent) handleAnalyzing(ctx context.Context, jobID string, payload map[string]interface{}) error {
	listing, err := listingFrom(payload)
	if err != nil {
		a.engine.FailJob(ctx, jobID, err.Error(), false)
		return err
	}

	detailed, err := a.scraper.FetchJobDetail(ctx, listing)
	if err != nil {
		a.engine.FailJob(ctx, jobID, fmt.Sprintf("detail fetch failed: %v", err), true)
		return err
	}

	match, err := a.matcher.AnalyzeJobMatch(ctx, detailed)
	if err != nil {
		a.engine.FailJob(ctx, jobID, fmt.Sprintf("match analysis failed: %v", err), true)
		return err
	}

	if !match.ShouldApply {
		a.logger.Info().
			Str("job_id", jobID).
			Str("reason", match.Reason).
			Msg("Skipping listing")
		a.engine.CancelJob(ctx, jobID, "listing did not match worker profile")
		return nil
	}

	a.engine.TransitionJob(ctx, jobID, models.StageApplying, map[string]interface{}{
		payloadListing: detailed,
		payloadMatch:   match,
	})
	return nil
}

func (a *Agent) handleApplying(ctx context.Context, jobID string, payload map[string]interface{}) error {
	listing, err := listingFrom(payload)
	if err != nil {
		a.engine.FailJob(ctx, jobID, err.Error(), false)
		return err
	}
	match, _ := payload[payloadMatch].(*models.MatchResult)

	if err := a.applicator.ApplyForJob(ctx, listing, match); err != nil {
		a.engine.FailJob(ctx, jobID, fmt.Sprintf("application failed: %v", err), true)
		return err
	}

	a.engine.TransitionJob(ctx, jobID, models.StageWaitingResponse, map[string]interface{}{
		"application_time": time.Now(),
	})
	return nil
}

func (a *Agent) handleAccepted(ctx context.Context, jobID string, payload map[string]interface{}) error {
	a.engine.TransitionJob(ctx, jobID, models.StageInProgress, map[string]interface{}{
		"work_start_time": time.Now(),
	})
	return nil
}

func (a *Agent) handleInProgress(ctx context.Context, jobID string, payload map[string]interface{}) error {
	listing, err := listingFrom(payload)
	if err != nil {
		a.engine.FailJob(ctx, jobID, err.Error(), false)
		return err
	}

	notes, _ := payload[payloadRevisionNotes].(string)

	result, err := a.worker.ProcessTask(ctx, jobID, listing, notes)
	if err != nil {
		a.engine.FailJob(ctx, jobID, fmt.Sprintf("task processing failed: %v", err), true)
		return err
	}

	a.engine.TransitionJob(ctx, jobID, models.StageDelivering, map[string]interface{}{
		payloadTaskResult: result,
	})
	return nil
}

func (a *Agent) handleCommunicating(ctx context.Context, jobID string, payload map[string]interface{}) error {
	if msg, ok := payload[payloadPendingMsg].(*models.Message); ok && msg != nil {
		reply, err := a.responder.GenerateResponse(ctx, jobID, msg)
		if err == nil && reply != "" {
			if err := a.messages.SendMessage(ctx, jobID, reply); err != nil {
				a.logger.Warn().Err(err).Str("job_id", jobID).Msg("Reply send failed")
			}
		}
	}

	// Conversation handled. Back to work.
	a.engine.TransitionJob(ctx, jobID, models.StageInProgress, map[string]interface{}{
		payloadPendingMsg: nil,
	})
	return nil
}

func (a *Agent) handleDelivering(ctx context.Context, jobID string, payload map[string]interface{}) error {
	result, ok := payload[payloadTaskResult].(*models.TaskResult)
	if !ok || result == nil {
		err := fmt.Errorf("no task result to deliver")
		a.engine.FailJob(ctx, jobID, err.Error(), false)
		return err
	}

	if err := a.delivery.DeliverWork(ctx, jobID, result); err != nil {
		a.engine.FailJob(ctx, jobID, fmt.Sprintf("delivery failed: %v", err), true)
		return err
	}

	a.engine.TransitionJob(ctx, jobID, models.StageSubmitted, map[string]interface{}{
		"submission_time": time.Now(),
	})
	return nil
}

func (a *Agent) handleRevisionRequested(ctx context.Context, jobID string, payload map[string]interface{}) error {
	notes, _ := payload[payloadRevisionNotes].(string)
	a.engine.TransitionJob(ctx, jobID, models.StageInProgress, map[string]interface{}{
		payloadRevisionNotes: notes,
	})
	return nil
}

func listingFrom(payload map[string]interface{}) (*models.JobListing, error) {
	listing, ok := payload[payloadListing].(*models.JobListing)
	if !ok || listing == nil {
		return nil, fmt.Errorf("job payload has no listing")
	}
	return listing, nil
}

// Client response classification.

type outcome int

const (
	outcomeNeutral outcome = iota
	outcomeAccepted
	outcomeRejected
	outcomeRevision
	outcomeApproved
)

var outcomeKeywords = []struct {
	outcome  outcome
	keywords []string
}{
	{outcomeRevision, []string{"修正", "やり直し", "revision", "変更してください"}},
	{outcomeRejected, []string{"不採用", "見送り", "お断り", "rejected", "unfortunately"}},
	{outcomeApproved, []string{"検収", "承認しました", "approved", "ありがとうございました。完了"}},
	{outcomeAccepted, []string{"採用", "お願いします", "accepted", "発注"}},
}

func classifyOutcome(body string) outcome {
	text := strings.ToLower(body)
	for _, entry := range outcomeKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.outcome
			}
		}
	}
	return outcomeNeutral
}
