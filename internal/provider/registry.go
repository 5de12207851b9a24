package provider

import (
	"fmt"
	"strings"
)

// Registry maps provider identifiers to adapters. Adding a provider means
// registering a new adapter, not editing a dispatch function.
type Registry struct {
	adapters    map[string]Adapter
	passThrough Adapter
	needKey     map[string]bool
}

// NewRegistry creates an empty registry with the given pass-through fallback.
func NewRegistry(passThrough Adapter) *Registry {
	return &Registry{
		adapters:    make(map[string]Adapter),
		passThrough: passThrough,
		needKey:     make(map[string]bool),
	}
}

// Register adds an adapter under name and any aliases.
func (r *Registry) Register(adapter Adapter, name string, aliases ...string) error {
	for _, id := range append([]string{name}, aliases...) {
		key := normalizeProvider(id)
		if key == "" {
			return fmt.Errorf("provider identifier cannot be empty")
		}
		if _, exists := r.adapters[key]; exists {
			return fmt.Errorf("provider %q already registered", key)
		}
		r.adapters[key] = adapter
	}
	return nil
}

// RequireCredential marks providers that cannot be tested without a credential.
func (r *Registry) RequireCredential(names ...string) {
	for _, name := range names {
		r.needKey[normalizeProvider(name)] = true
	}
}

// Lookup returns the adapter for the provider, falling back to the
// pass-through adapter for unknown providers.
func (r *Registry) Lookup(provider string) Adapter {
	if adapter, ok := r.adapters[normalizeProvider(provider)]; ok {
		return adapter
	}
	return r.passThrough
}

// Known reports whether the provider has a dedicated adapter.
func (r *Registry) Known(provider string) bool {
	_, ok := r.adapters[normalizeProvider(provider)]
	return ok
}

// RequiresCredential reports whether the provider mandates a credential
// before a connection test may run.
func (r *Registry) RequiresCredential(provider string) bool {
	return r.needKey[normalizeProvider(provider)]
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewDefaultRegistry wires every adapter this service ships with.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(&PassThroughAdapter{})

	// Registration cannot fail here: names are distinct literals.
	_ = r.Register(&AlphaVantageAdapter{}, "alpha vantage", "alphavantage")
	_ = r.Register(&YahooFinanceAdapter{}, "yahoo", "yahoo finance")
	_ = r.Register(&NSEAdapter{}, "nse india", "nse")
	_ = r.Register(&NewsAPIAdapter{}, "newsapi")
	_ = r.Register(&FMPAdapter{}, "financial modeling prep", "fmp")
	_ = r.Register(&CoinGeckoAdapter{}, "coingecko")

	r.RequireCredential(
		"alpha vantage",
		"alphavantage",
		"newsapi",
		"yahoo",
		"yahoo finance",
		"tradingview",
		"financial modeling prep",
		"fmp",
		"coingecko",
	)

	return r
}
