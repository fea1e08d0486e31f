package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/ternarybob/laboro/internal/workflow"
)

// In-memory archive so the engine can schedule archival without badger.
type memArchive struct {
	mu      sync.Mutex
	records map[string]*models.JobRecord
}

func newMemArchive() *memArchive {
	return &memArchive{records: make(map[string]*models.JobRecord)}
}

func (m *memArchive) ArchiveJob(ctx context.Context, record *models.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *memArchive) GetJob(ctx context.Context, jobID string) (*models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[jobID]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func (m *memArchive) ListJobs(ctx context.Context, limit int) ([]*models.JobRecord, error) {
	return nil, nil
}

func (m *memArchive) GetStats(ctx context.Context) (*interfaces.ArchiveStats, error) {
	return &interfaces.ArchiveStats{}, nil
}

func (m *memArchive) DeleteOlderThan(ctx context.Context, days int) (int, error) {
	return 0, nil
}

// Scripted collaborators.

type stubScraper struct {
	listings  []*models.JobListing
	searchErr error
}

func (s *stubScraper) SearchJobs(ctx context.Context) ([]*models.JobListing, error) {
	return s.listings, s.searchErr
}

func (s *stubScraper) FetchJobDetail(ctx context.Context, listing *models.JobListing) (*models.JobListing, error) {
	detailed := *listing
	detailed.Description = listing.Description + " (full detail)"
	return &detailed, nil
}

type stubMatcher struct {
	shouldApply bool
}

func (s *stubMatcher) AnalyzeJobMatch(ctx context.Context, listing *models.JobListing) (*models.MatchResult, error) {
	return &models.MatchResult{
		ShouldApply: s.shouldApply,
		Score:       0.8,
		Proposal:    "対応いたします",
	}, nil
}

type stubApplicator struct {
	mu      sync.Mutex
	applied []string
	resets  int
	err     error
}

func (s *stubApplicator) ApplyForJob(ctx context.Context, listing *models.JobListing, match *models.MatchResult) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, listing.ID)
	return nil
}

func (s *stubApplicator) ResetDailyCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

type stubMessages struct {
	mu      sync.Mutex
	inbox   map[string][]*models.Message
	replies []string
}

func (s *stubMessages) FetchMessages(ctx context.Context, jobID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.inbox[jobID]
	delete(s.inbox, jobID)
	return msgs, nil
}

func (s *stubMessages) SendMessage(ctx context.Context, jobID string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, body)
	return nil
}

type stubResponder struct{}

func (s *stubResponder) GenerateResponse(ctx context.Context, jobID string, message *models.Message) (string, error) {
	return "承知いたしました。", nil
}

type stubWorker struct {
	mu    sync.Mutex
	notes []string
}

func (s *stubWorker) ProcessTask(ctx context.Context, jobID string, listing *models.JobListing, revisionNotes string) (*models.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, revisionNotes)
	return &models.TaskResult{
		JobID:       jobID,
		Content:     "deliverable",
		Revision:    len(s.notes) - 1,
		CompletedAt: time.Now(),
	}, nil
}

type stubDelivery struct {
	mu        sync.Mutex
	delivered int
}

func (s *stubDelivery) DeliverWork(ctx context.Context, jobID string, result *models.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered++
	return nil
}

type fixture struct {
	agent      *Agent
	engine     *workflow.Engine
	scraper    *stubScraper
	matcher    *stubMatcher
	applicator *stubApplicator
	messages   *stubMessages
	worker     *stubWorker
	delivery   *stubDelivery
}

func newFixture(t *testing.T, listings []*models.JobListing, shouldApply bool) *fixture {
	t.Helper()

	cfg := common.NewDefaultConfig()
	opts := workflow.OptionsFromConfig(cfg)
	engine := workflow.NewEngine(opts, newMemArchive(), nil, common.GetLogger())

	f := &fixture{
		engine:     engine,
		scraper:    &stubScraper{listings: listings},
		matcher:    &stubMatcher{shouldApply: shouldApply},
		applicator: &stubApplicator{},
		messages:   &stubMessages{inbox: make(map[string][]*models.Message)},
		worker:     &stubWorker{},
		delivery:   &stubDelivery{},
	}
	f.agent = New(engine, Collaborators{
		Scraper:    f.scraper,
		Matcher:    f.matcher,
		Applicator: f.applicator,
		Messages:   f.messages,
		Responder:  &stubResponder{},
		Worker:     f.worker,
		Delivery:   f.delivery,
	}, nil, cfg, common.GetLogger())
	return f
}

func listing(id string) *models.JobListing {
	return &models.JobListing{
		ID:          id,
		Title:       "データ入力",
		URL:         "/jobs/" + id,
		Description: "入力作業",
		Payment:     5000,
	}
}

func TestSearchAndApplyReachesWaitingResponse(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, true)

	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	stage, err := f.engine.GetJobState("j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageWaitingResponse, stage)
	assert.Equal(t, []string{"j1"}, f.applicator.applied)
}

func TestSearchAndApplySkipsMismatchedListing(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, false)

	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	stage, err := f.engine.GetJobState("j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, stage)
	assert.Empty(t, f.applicator.applied)
}

func TestSearchAndApplyHonorsPerSearchLimit(t *testing.T) {
	listings := []*models.JobListing{
		listing("j1"), listing("j2"), listing("j3"),
		listing("j4"), listing("j5"), listing("j6"), listing("j7"),
	}
	f := newFixture(t, listings, true)

	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	active := f.engine.GetActiveJobs()
	assert.Len(t, active, 5)
	_, err := f.engine.GetJobState("j6")
	require.Error(t, err)
}

func TestSearchAndApplySkipsDuplicates(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, true)

	require.NoError(t, f.agent.SearchAndApply(context.Background()))
	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	assert.Equal(t, []string{"j1"}, f.applicator.applied, "duplicate sweep must not re-apply")
}

func TestAcceptanceMessageDrivesJobToSubmitted(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, true)
	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	f.messages.inbox["j1"] = []*models.Message{
		{ID: "m1", JobID: "j1", Body: "採用します。よろしくお願いします。"},
	}
	require.NoError(t, f.agent.PollMessages(context.Background()))

	stage, err := f.engine.GetJobState("j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageSubmitted, stage)
	assert.Equal(t, 1, f.delivery.delivered)
}

func TestRejectionMessageCancelsJob(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, true)
	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	f.messages.inbox["j1"] = []*models.Message{
		{ID: "m1", JobID: "j1", Body: "申し訳ありませんが、今回は見送りとさせていただきます。"},
	}
	require.NoError(t, f.agent.PollMessages(context.Background()))

	stage, err := f.engine.GetJobState("j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, stage)
}

func TestRevisionMessageTriggersRework(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, true)
	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	f.messages.inbox["j1"] = []*models.Message{
		{ID: "m1", JobID: "j1", Body: "採用します"},
	}
	require.NoError(t, f.agent.PollMessages(context.Background()))

	f.messages.inbox["j1"] = []*models.Message{
		{ID: "m2", JobID: "j1", Body: "この部分の修正をお願いします"},
	}
	require.NoError(t, f.agent.PollMessages(context.Background()))

	stage, err := f.engine.GetJobState("j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageSubmitted, stage, "rework redelivers and resubmits")
	assert.Equal(t, 2, f.delivery.delivered)

	require.Len(t, f.worker.notes, 2)
	assert.Empty(t, f.worker.notes[0])
	assert.Contains(t, f.worker.notes[1], "修正")
}

func TestApprovalMessageCompletesJob(t *testing.T) {
	f := newFixture(t, []*models.JobListing{listing("j1")}, true)
	require.NoError(t, f.agent.SearchAndApply(context.Background()))

	f.messages.inbox["j1"] = []*models.Message{{ID: "m1", JobID: "j1", Body: "採用します"}}
	require.NoError(t, f.agent.PollMessages(context.Background()))

	f.messages.inbox["j1"] = []*models.Message{{ID: "m2", JobID: "j1", Body: "検収しました。"}}
	require.NoError(t, f.agent.PollMessages(context.Background()))

	stage, err := f.engine.GetJobState("j1")
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, stage)
}

func TestResetDailyCounters(t *testing.T) {
	f := newFixture(t, nil, true)

	require.NoError(t, f.agent.ResetDailyCounters(context.Background()))
	assert.Equal(t, 1, f.applicator.resets)
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		body string
		want outcome
	}{
		{"採用します", outcomeAccepted},
		{"修正をお願いします", outcomeRevision},
		{"不採用です", outcomeRejected},
		{"検収しました", outcomeApproved},
		{"進捗を教えてください", outcomeNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyOutcome(tt.body), tt.body)
	}
}
