package interfaces

import "context"

// LLMMode identifies the provider backing the LLM service
type LLMMode string

const (
	LLMModeClaude LLMMode = "claude"
	LLMModeGemini LLMMode = "gemini"
)

// Message represents a single message in a chat conversation
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// LLMService provides chat completions for the matcher, responder and
// task-processor collaborators.
type LLMService interface {
	// Chat generates a completion from the conversation history.
	Chat(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error

	// GetMode returns the active provider.
	GetMode() LLMMode

	// Close releases provider resources.
	Close() error
}
