// Package registry holds the process-wide catalog of deployed dynamic
// domains. It is populated from storage at startup and updated in place when
// the deployer registers a new domain; no restart is ever required.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/pkg/models"
)

// Registry maps domain name to DeployedDomain. Pure lookup: it holds no
// persistence logic. Components asking "is this a known record type" or
// "which table backs it" consult the registry, never storage directly.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*models.DeployedDomain
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*models.DeployedDomain)}
}

// Load replaces the catalog with every domain in the store.
func (r *Registry) Load(ctx context.Context, store *db.DomainStore) error {
	domains, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("load deployed domains: %w", err)
	}

	byName := make(map[string]*models.DeployedDomain, len(domains))
	for _, d := range domains {
		byName[d.Name] = d
	}

	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()
	return nil
}

// Register adds a freshly deployed domain to the catalog.
func (r *Registry) Register(d *models.DeployedDomain) {
	r.mu.Lock()
	r.byName[d.Name] = d
	r.mu.Unlock()
}

// Get returns a domain by name. Returns (nil, false) if not registered.
func (r *Registry) Get(name string) (*models.DeployedDomain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Has reports whether a domain with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns every registered domain sorted by name.
func (r *Registry) All() []*models.DeployedDomain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.DeployedDomain, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted names of every registered domain.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, d := range all {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered domains.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
