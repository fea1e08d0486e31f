package delivery

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

type submitRequest struct {
	Message        string        `json:"message"`
	CompletionTime string        `json:"completion_time"`
	Deliverables   []deliverable `json:"deliverables"`
}

type deliverable struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Client submits completed work to the platform submit endpoint.
type Client struct {
	client *scraper.Client
	logger arbor.ILogger
}

func NewClient(client *scraper.Client, logger arbor.ILogger) *Client {
	return &Client{client: client, logger: logger}
}

// DeliverWork submits one task result for the job.
func (c *Client) DeliverWork(ctx context.Context, jobID string, result *models.TaskResult) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if result == nil || result.Content == "" {
		return fmt.Errorf("task result with content is required")
	}

	message := "納品いたします。ご確認のほどよろしくお願いいたします。"
	if result.Revision > 0 {
		message = fmt.Sprintf("修正版（第%d版）を納品いたします。ご確認ください。", result.Revision)
	}

	payload, err := json.Marshal(submitRequest{
		Message:        message,
		CompletionTime: result.CompletedAt.Format(time.RFC3339),
		Deliverables: []deliverable{
			{Type: "text", Content: result.Content},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	if _, err := c.client.PostJSON(ctx, fmt.Sprintf("/api/jobs/%s/submit", jobID), payload); err != nil {
		return fmt.Errorf("work delivery failed for job %s: %w", jobID, err)
	}

	c.logger.Info().
		Str("job_id", jobID).
		Int("revision", result.Revision).
		Int("content_length", len(result.Content)).
		Msg("Delivered work")

	return nil
}

var _ interfaces.DeliveryClient = (*Client)(nil)
