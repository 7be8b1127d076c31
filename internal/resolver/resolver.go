package resolver

import (
	"context"
	"fmt"
	"sort"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/session"
)

// Query carries the searchable fields of one catalog row.
type Query struct {
	OriginalID string
	Name       string
	EAN        string
}

// QueryFor extracts the searchable fields of a product.
func QueryFor(p domain.Product) Query {
	return Query{OriginalID: p.OriginalID, Name: p.OriginalName, EAN: p.EAN}
}

// Resolver looks one product up on a marketplace. Implementations never
// return an unclassified failure: every problem becomes an Outcome.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, s *session.Session, q Query) domain.Outcome
}

// Registry keeps a mapping from site names to their resolvers.
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: map[string]Resolver{}}
}

// Register adds or replaces a resolver implementation.
func (r *Registry) Register(resolver Resolver) {
	if r.resolvers == nil {
		r.resolvers = map[string]Resolver{}
	}
	r.resolvers[resolver.Name()] = resolver
}

// Lookup returns a resolver by name or an error if it is absent.
func (r *Registry) Lookup(name string) (Resolver, error) {
	if resolver, ok := r.resolvers[name]; ok {
		return resolver, nil
	}
	return nil, fmt.Errorf("resolver %s is not registered", name)
}

// Names lists registered sites in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
