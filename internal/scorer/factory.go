package scorer

import (
	"fmt"

	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/pkg/models"
)

// NewProvider constructs the appropriate score provider based on config.
// Called once at server startup.
func NewProvider(cfg config.ScorerConfig) (models.ScoreProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.Ollama), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic), nil
	case "mock":
		return NewStaticProvider(), nil
	default:
		return nil, fmt.Errorf("unknown score provider %q: must be one of ollama, openai, anthropic, mock", cfg.Provider)
	}
}
