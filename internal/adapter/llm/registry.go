package llm

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// newBedrock is set by bedrock.go when built with -tags bedrock.
var newBedrock func(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error)

// NewProvider constructs a provider from its config entry.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg, logger), nil
	case "gemini":
		return NewGeminiProvider(cfg, logger), nil
	case "bedrock":
		if newBedrock == nil {
			return nil, fmt.Errorf("provider %q: bedrock support not compiled in (build with -tags bedrock)", cfg.Name)
		}
		return newBedrock(cfg, logger)
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

// BuildRegistry creates every configured provider, wrapping each in a
// circuit breaker when enabled.
func BuildRegistry(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, err
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		logger.Info("llm provider registered", "name", pc.Name, "type", pc.Type, "model", pc.Model)
	}
	return reg, nil
}

// Default returns the configured default provider, or nil when no provider
// is configured so callers run their rule-based paths.
func (r *Registry) Default(name string) domain.LLMProvider {
	if name != "" {
		if p, err := r.Get(name); err == nil {
			return p
		}
	}
	names := r.List()
	if len(names) == 0 {
		return nil
	}
	p, _ := r.Get(names[0])
	return p
}
