package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
)

// NewFromConfig creates the LLM client selected by the configuration.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	clientCfg := &Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(clientCfg, logger)
	case "openai", "":
		return NewClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
