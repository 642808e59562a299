package provider

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned when a job names a provider that was never
// registered. This is a configuration error, not a vendor failure, and is
// never retried.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// Registry maps provider names to adapters. It is populated once at
// bootstrap and read-only afterwards, so lookups need no locking.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry containing the given providers, keyed by
// their Name().
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get resolves a provider by name. Unknown names fail loudly with
// ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, name, r.Names())
	}
	return p, nil
}

// Names returns the sorted names of all registered providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered provider, ordered by name.
func (r *Registry) All() []Provider {
	all := make([]Provider, 0, len(r.providers))
	for _, name := range r.Names() {
		all = append(all, r.providers[name])
	}
	return all
}
