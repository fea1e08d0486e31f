// -----------------------------------------------------------------------
// Message Client - Exchanges messages with clients on the platform
// -----------------------------------------------------------------------

package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/models"
	"github.com/ternarybob/laboro/internal/services/scraper"
)

type inboxResponse struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

type sendRequest struct {
	JobID string `json:"job_id"`
	Body  string `json:"body"`
}

// Client talks to the platform message endpoints.
type Client struct {
	client *scraper.Client
	logger arbor.ILogger
}

func NewClient(client *scraper.Client, logger arbor.ILogger) *Client {
	return &Client{client: client, logger: logger}
}

// FetchMessages returns the unread messages for one job.
func (c *Client) FetchMessages(ctx context.Context, jobID string) ([]*models.Message, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	raw, err := c.client.Get(ctx, fmt.Sprintf("/api/jobs/%s/messages?status=unread", jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages for job %s: %w", jobID, err)
	}

	var inbox inboxResponse
	if err := json.Unmarshal(raw, &inbox); err != nil {
		return nil, fmt.Errorf("failed to decode inbox for job %s: %w", jobID, err)
	}

	messages := make([]*models.Message, 0, len(inbox.Messages))
	for _, wm := range inbox.Messages {
		msg, err := parseWireMessage(jobID, wm)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("message_id", wm.ID).
				Msg("Skipping unparseable message")
			continue
		}
		messages = append(messages, msg)
	}

	c.logger.Debug().
		Str("job_id", jobID).
		Int("count", len(messages)).
		Msg("Fetched messages")

	return messages, nil
}

// SendMessage posts one reply to the job's conversation.
func (c *Client) SendMessage(ctx context.Context, jobID string, body string) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if body == "" {
		return fmt.Errorf("message body is required")
	}

	payload, err := json.Marshal(sendRequest{JobID: jobID, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if _, err := c.client.PostJSON(ctx, fmt.Sprintf("/api/jobs/%s/messages", jobID), payload); err != nil {
		return fmt.Errorf("failed to send message for job %s: %w", jobID, err)
	}

	c.logger.Info().
		Str("job_id", jobID).
		Int("length", len(body)).
		Msg("Sent message")

	return nil
}

func parseWireMessage(jobID string, wm wireMessage) (*models.Message, error) {
	if wm.ID == "" {
		return nil, fmt.Errorf("message missing ID")
	}

	receivedAt := time.Now()
	if wm.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, wm.Timestamp); err == nil {
			receivedAt = ts
		}
	}

	msgJobID := wm.JobID
	if msgJobID == "" {
		msgJobID = jobID
	}

	return &models.Message{
		ID:         wm.ID,
		JobID:      msgJobID,
		Sender:     wm.Sender,
		Body:       wm.Content,
		ReceivedAt: receivedAt,
		Read:       wm.Read,
	}, nil
}

var _ interfaces.MessageClient = (*Client)(nil)
