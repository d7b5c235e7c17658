package login

import (
	"slices"
	"sync"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// Registry holds the configured providers by name. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns a registry holding providers.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p. Registering a name twice is a conflict.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Name()]; ok {
		return sserr.Newf(sserr.CodeConflictAlreadyExists, "login: provider %q already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Get returns the provider called name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Infos returns ProviderInfo for every provider, sorted by name.
func (r *Registry) Infos(publicURL string) []Info {
	names := r.Names()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		if p, ok := r.Get(name); ok {
			infos = append(infos, ProviderInfo(p, publicURL))
		}
	}
	return infos
}
