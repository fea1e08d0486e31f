package applicator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/ternarybob/laboro/internal/services/scraper"
)

func newTestApplicator(t *testing.T, handler http.Handler, dailyLimit int) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := scraper.NewClient(server.URL, common.GetLogger(),
		scraper.WithRequestInterval(time.Millisecond))
	return NewService(client, dailyLimit, common.GetLogger())
}

func testListing() *models.JobListing {
	return &models.JobListing{
		ID:      "301",
		Title:   "データ入力",
		Payment: 5000,
	}
}

func TestApplyForJobSubmitsProposal(t *testing.T) {
	var gotBody applyRequest
	svc := newTestApplicator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/301/apply", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(applyResponse{ApplicationID: "app-1"})
	}), 10)

	match := &models.MatchResult{ShouldApply: true, Proposal: "custom proposal"}
	require.NoError(t, svc.ApplyForJob(context.Background(), testListing(), match))

	assert.Equal(t, "301", gotBody.JobID)
	assert.Equal(t, "custom proposal", gotBody.Proposal)
	assert.Equal(t, 5000.0, gotBody.BidAmount)
	assert.True(t, svc.HasApplied("301"))
	assert.Equal(t, 1, svc.DailyCount())
}

func TestApplyForJobIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	svc := newTestApplicator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("{}"))
	}), 10)

	require.NoError(t, svc.ApplyForJob(context.Background(), testListing(), nil))
	require.NoError(t, svc.ApplyForJob(context.Background(), testListing(), nil))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, svc.DailyCount())
}

func TestApplyForJobUsesFallbackProposal(t *testing.T) {
	var gotBody applyRequest
	svc := newTestApplicator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte("{}"))
	}), 10)

	require.NoError(t, svc.ApplyForJob(context.Background(), testListing(), nil))
	assert.Equal(t, fallbackProposal, gotBody.Proposal)
}

func TestApplyForJobEnforcesDailyLimit(t *testing.T) {
	svc := newTestApplicator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}), 1)

	require.NoError(t, svc.ApplyForJob(context.Background(), testListing(), nil))

	second := testListing()
	second.ID = "302"
	err := svc.ApplyForJob(context.Background(), second, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily application limit")

	svc.ResetDailyCount()
	require.NoError(t, svc.ApplyForJob(context.Background(), second, nil))
}

func TestApplyForJobServerErrorNotRecorded(t *testing.T) {
	svc := newTestApplicator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), 10)

	err := svc.ApplyForJob(context.Background(), testListing(), nil)
	require.Error(t, err)
	assert.False(t, svc.HasApplied("301"))
	assert.Zero(t, svc.DailyCount())
}

func TestApplyForJobRequiresListing(t *testing.T) {
	svc := newTestApplicator(t, http.NotFoundHandler(), 10)
	require.Error(t, svc.ApplyForJob(context.Background(), nil, nil))
	require.Error(t, svc.ApplyForJob(context.Background(), &models.JobListing{}, nil))
}
