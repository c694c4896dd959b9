package embedding

import (
	"fmt"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
)

// New builds the configured embedder wrapped in the query cache.
func New(cfg config.EmbeddingConfig) (domain.EmbeddingProvider, error) {
	var p domain.EmbeddingProvider
	switch cfg.Provider {
	case "hash", "":
		p = NewHashProvider(cfg.Dimensions)
	case "openai":
		opts := []OpenAIOption{}
		if cfg.Model != "" {
			opts = append(opts, WithOpenAIModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, WithOpenAIDimensions(cfg.Dimensions))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		p = NewOpenAIProvider(cfg.APIKey, opts...)
	case "gemini":
		opts := []GeminiOption{}
		if cfg.Model != "" {
			opts = append(opts, WithGeminiModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, WithGeminiDimensions(cfg.Dimensions))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithGeminiBaseURL(cfg.BaseURL))
		}
		p = NewGeminiProvider(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewCachedEmbedder(p, cfg.CacheSize), nil
}
