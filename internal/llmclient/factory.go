// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
)

// NewClient builds the tiered LLM client described by the agent configuration.
// Default model names that have no entry in the models map are treated as
// bare Gemini model names using the shared API key.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fast, err := newTierClient(ctx, cfg.LLM, cfg.LLM.DefaultFastModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client: %w", err)
	}
	powerful, err := newTierClient(ctx, cfg.LLM, cfg.LLM.DefaultPowerfulModel, logger)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
	}
	return NewLLMRouter(logger, fast, powerful)
}

func newTierClient(ctx context.Context, cfg config.LLMRouterConfig, name string, logger *zap.Logger) (schemas.LLMClient, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is empty")
	}
	modelCfg, ok := cfg.Models[name]
	if !ok {
		modelCfg = config.LLMModelConfig{Provider: config.ProviderGemini, Model: name}
	}
	if modelCfg.Model == "" {
		modelCfg.Model = name
	}
	if modelCfg.APIKey == "" {
		modelCfg.APIKey = cfg.APIKey
	}
	if modelCfg.Provider == "" {
		modelCfg.Provider = config.ProviderGemini
	}

	var client schemas.LLMClient
	switch modelCfg.Provider {
	case config.ProviderGemini:
		gc, err := NewGeminiClient(ctx, modelCfg, logger)
		if err != nil {
			return nil, err
		}
		client = gc
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", modelCfg.Provider, config.ProviderGemini)
	}

	if modelCfg.RequestsPerSecond > 0 {
		client = NewRateLimitedClient(client, modelCfg.RequestsPerSecond, modelCfg.Burst)
	}
	return client, nil
}
