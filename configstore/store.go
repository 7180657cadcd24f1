package configstore

import (
	"context"
	"sync"

	"github.com/c360/unigate/route"
)

// Store is the configuration-store collaborator boundary. The durable store
// owns route documents; the gateway only lists them on reload.
type Store interface {
	// ListRoutes returns every non-deleted route document together with
	// the store's revision token for the set. Documents are returned
	// unvalidated - validation belongs to the registry so that a bad
	// document is rejected at load time, not silently skipped here.
	ListRoutes(ctx context.Context) ([]route.Route, uint64, error)
}

// MemoryStore is an in-process Store used in tests and single-node
// development setups. Every mutation bumps the revision.
type MemoryStore struct {
	mu       sync.RWMutex
	routes   map[string]route.Route
	revision uint64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{routes: make(map[string]route.Route)}
}

// Put creates or replaces a route document and returns the new revision
func (s *MemoryStore) Put(r route.Route) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	r.Version = s.revision
	s.routes[r.ID] = r
	return s.revision
}

// MarkDeleted tombstones a route document. Deleted documents are excluded
// from ListRoutes so the next reload frees their path+method for reuse.
func (s *MemoryStore) MarkDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[id]
	if !ok {
		return false
	}
	s.revision++
	r.Deleted = true
	r.Version = s.revision
	s.routes[id] = r
	return true
}

// ListRoutes implements Store
func (s *MemoryStore) ListRoutes(_ context.Context) ([]route.Route, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]route.Route, 0, len(s.routes))
	for _, r := range s.routes {
		if r.Deleted {
			continue
		}
		routes = append(routes, r)
	}
	return routes, s.revision, nil
}
