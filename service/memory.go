package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofhir/sdcforms/canonical"
	"github.com/gofhir/sdcforms/model"
)

// MemoryStore implements Store with in-memory storage. It applies the same
// versioned/unversioned canonical lookup rules as the remote store, which
// makes it suitable both as a test double for the packaging core and as a
// local artifact store in front of a remote resolver chain.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[string][]*storedResource // kind -> resources
}

type storedResource struct {
	res         *model.Resource
	status      string
	lastUpdated time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[string][]*storedResource),
	}
}

// Add stores a raw resource. The resourceType, id, url, version, status
// and meta.lastUpdated fields are parsed out of the payload; everything
// else is kept opaque.
func (s *MemoryStore) Add(raw json.RawMessage) error {
	res, err := model.ParseResource(raw)
	if err != nil {
		return fmt.Errorf("failed to add resource: %w", err)
	}

	var meta struct {
		Status string `json:"status"`
		Meta   struct {
			LastUpdated string `json:"lastUpdated"`
		} `json:"meta"`
	}
	// Identity fields already parsed; status/meta are best-effort.
	_ = json.Unmarshal(raw, &meta)

	stored := &storedResource{res: res, status: meta.Status}
	if meta.Meta.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339, meta.Meta.LastUpdated); err == nil {
			stored.lastUpdated = ts
		}
	}

	s.mu.Lock()
	s.resources[res.Type] = append(s.resources[res.Type], stored)
	s.mu.Unlock()
	return nil
}

// MustAdd is Add for test fixtures; it panics on malformed payloads.
func (s *MemoryStore) MustAdd(raw string) {
	if err := s.Add(json.RawMessage(raw)); err != nil {
		panic(err)
	}
}

// ResolveCanonical implements CanonicalResolver.
func (s *MemoryStore) ResolveCanonical(ctx context.Context, kind, ref string) (*model.Resource, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	parsed := canonical.Parse(ref)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if parsed.Versioned() {
		for _, stored := range s.resources[kind] {
			if stored.res.URL == parsed.URL && stored.res.Version == parsed.Version {
				return stored.res, nil
			}
		}
		return nil, ErrNotFound
	}

	// Unversioned: latest active wins; no fallback to draft or retired.
	var best *storedResource
	for _, stored := range s.resources[kind] {
		if stored.res.URL != parsed.URL || stored.status != "active" {
			continue
		}
		if best == nil || stored.lastUpdated.After(best.lastUpdated) {
			best = stored
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.res, nil
}

// GetResource implements ResourceGetter.
func (s *MemoryStore) GetResource(ctx context.Context, kind, id string) (*model.Resource, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, stored := range s.resources[kind] {
		if stored.res.ID == id {
			return stored.res, nil
		}
	}
	return nil, ErrNotFound
}

// Count returns the number of stored resources of the given kind.
func (s *MemoryStore) Count(kind string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resources[kind])
}

var _ Store = (*MemoryStore)(nil)
