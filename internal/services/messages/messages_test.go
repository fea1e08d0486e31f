package messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/ternarybob/laboro/internal/services/scraper"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	platform := scraper.NewClient(server.URL, common.GetLogger(),
		scraper.WithRequestInterval(time.Millisecond))
	return NewClient(platform, common.GetLogger())
}

func TestFetchMessages(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/501/messages", r.URL.Path)
		assert.Equal(t, "unread", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(inboxResponse{Messages: []wireMessage{
			{ID: "m1", JobID: "501", Sender: "client-a", Content: "進捗はいかがですか？", Timestamp: "2026-08-29T10:00:00Z"},
			{ID: "m2", Sender: "client-a", Content: "no job id on this one"},
			{Sender: "client-a", Content: "missing message id, skipped"},
		}})
	}))

	messages, err := client.FetchMessages(context.Background(), "501")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "進捗はいかがですか？", messages[0].Body)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), messages[0].ReceivedAt)
	assert.Equal(t, "501", messages[1].JobID, "job ID inherited from the fetch")
}

func TestFetchMessagesServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.FetchMessages(context.Background(), "501")
	require.Error(t, err)
}

func TestSendMessage(t *testing.T) {
	var got sendRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/501/messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("{}"))
	}))

	require.NoError(t, client.SendMessage(context.Background(), "501", "承知いたしました。"))
	assert.Equal(t, "501", got.JobID)
	assert.Equal(t, "承知いたしました。", got.Body)
}

func TestSendMessageValidation(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	require.Error(t, client.SendMessage(context.Background(), "", "body"))
	require.Error(t, client.SendMessage(context.Background(), "501", ""))
}

type scriptedLLM struct {
	response string
	err      error
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	return s.response, s.err
}
func (s *scriptedLLM) HealthCheck(ctx context.Context) error { return nil }
func (s *scriptedLLM) GetMode() interfaces.LLMMode           { return interfaces.LLMModeClaude }
func (s *scriptedLLM) Close() error                          { return nil }

func TestGenerateResponseWithLLM(t *testing.T) {
	responder := NewResponder(&scriptedLLM{response: "  順調に進んでおります。明日納品予定です。  "}, common.GetLogger())

	reply, err := responder.GenerateResponse(context.Background(), "501", &models.Message{
		ID:   "m1",
		Body: "進捗はどうですか",
	})
	require.NoError(t, err)
	assert.Equal(t, "順調に進んでおります。明日納品予定です。", reply)
}

func TestGenerateResponseFallsBackOnLLMError(t *testing.T) {
	responder := NewResponder(&scriptedLLM{err: errors.New("unavailable")}, common.GetLogger())

	reply, err := responder.GenerateResponse(context.Background(), "501", &models.Message{
		ID:   "m1",
		Body: "進捗はどうですか",
	})
	require.NoError(t, err)
	assert.Equal(t, cannedResponses[kindProgress], reply)
}

func TestGenerateResponseCannedWithoutLLM(t *testing.T) {
	responder := NewResponder(nil, common.GetLogger())

	tests := []struct {
		body string
		kind messageKind
	}{
		{"至急対応お願いします", kindUrgent},
		{"ひとつ質問があります", kindQuestion},
		{"この部分の修正をお願いします", kindRevision},
		{"Thanks for the update", kindGeneral},
	}
	for _, tt := range tests {
		reply, err := responder.GenerateResponse(context.Background(), "501", &models.Message{ID: "m1", Body: tt.body})
		require.NoError(t, err)
		assert.Equal(t, cannedResponses[tt.kind], reply)
	}
}

func TestGenerateResponseRequiresMessage(t *testing.T) {
	responder := NewResponder(nil, common.GetLogger())
	_, err := responder.GenerateResponse(context.Background(), "501", nil)
	require.Error(t, err)
}
