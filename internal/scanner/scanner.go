package scanner

import (
	"context"
	"fmt"
	"time"

	"DigestAgent/internal/domain"
)

// Provider captures a single news source strategy (keyword API, curated feeds, etc.).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, topic string, maxArticles int) ([]domain.Article, error)
}

// TimeBounded is implemented by providers that want a per-attempt deadline.
// A zero duration leaves the attempt bounded only by the caller's context.
type TimeBounded interface {
	AttemptTimeout() time.Duration
}

// Registry keeps a mapping from provider names to their implementations.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds or replaces a provider implementation.
func (r *Registry) Register(provider Provider) {
	if r.providers == nil {
		r.providers = map[string]Provider{}
	}
	r.providers[provider.Name()] = provider
}

// Resolve returns a provider by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Provider, error) {
	if provider, ok := r.providers[name]; ok {
		return provider, nil
	}
	return nil, fmt.Errorf("provider %s is not registered", name)
}

// Chain resolves names in priority order, skipping the ones that were never registered
// (an API provider without credentials is simply left out of the chain).
func (r *Registry) Chain(names []string) []Provider {
	chain := make([]Provider, 0, len(names))
	seen := map[string]struct{}{}
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if provider, err := r.Resolve(name); err == nil {
			chain = append(chain, provider)
		}
	}
	return chain
}
