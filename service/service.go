// Package service defines the boundary capabilities the packaging core
// depends on. The core only ever sees these small interfaces, so the
// backing FHIR store is substitutable with an in-memory implementation in
// tests.
package service

import (
	"context"
	"errors"

	"github.com/gofhir/sdcforms/model"
)

// ErrNotFound is returned when a resource genuinely does not exist in the
// backing store. Transport-level failures are returned as distinct errors
// so callers can tell absence from backend faults.
var ErrNotFound = errors.New("resource not found")

// CanonicalResolver resolves a canonical reference to a resource of the
// given kind.
//
// A versioned reference ("url|version") must match both url and version
// exactly. An unversioned reference selects the most recently updated
// active resource with that url; if no active resource exists the lookup
// yields ErrNotFound, never an inactive or draft one.
type CanonicalResolver interface {
	ResolveCanonical(ctx context.Context, kind, canonical string) (*model.Resource, error)
}

// ResourceGetter fetches a resource by its logical id. Absence is
// signaled with ErrNotFound.
type ResourceGetter interface {
	GetResource(ctx context.Context, kind, id string) (*model.Resource, error)
}

// Store is the full capability the package service needs from its
// backing resource store.
type Store interface {
	CanonicalResolver
	ResourceGetter
}

// ResolverChain implements CanonicalResolver by trying multiple resolvers
// in order, returning the first hit. Resolvers later in the chain are only
// consulted when earlier ones report ErrNotFound.
type ResolverChain struct {
	resolvers []CanonicalResolver
}

// NewResolverChain creates a resolver chain.
func NewResolverChain(resolvers ...CanonicalResolver) *ResolverChain {
	return &ResolverChain{resolvers: resolvers}
}

// Add appends a resolver to the chain.
func (c *ResolverChain) Add(r CanonicalResolver) {
	c.resolvers = append(c.resolvers, r)
}

// ResolveCanonical tries each resolver until one succeeds.
func (c *ResolverChain) ResolveCanonical(ctx context.Context, kind, canonical string) (*model.Resource, error) {
	for _, r := range c.resolvers {
		res, err := r.ResolveCanonical(ctx, kind, canonical)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

var _ CanonicalResolver = (*ResolverChain)(nil)
