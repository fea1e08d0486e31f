package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/interfaces"
)

// NewLLMService creates the appropriate LLM service implementation based
// on configuration. With provider "none" it returns a nil service and no
// error; callers fall back to heuristic behavior.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().Str("provider", string(cfg.LLM.Provider)).Msg("Initializing LLM service")

	switch cfg.LLM.Provider {
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, logger)

	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.Gemini, logger)

	case common.LLMProviderNone:
		logger.Warn().Msg("LLM provider disabled, matcher and responder use heuristic fallbacks")
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
