package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/unigate/configstore"
	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/metric"
	"github.com/c360/unigate/route"
)

// Registry owns the current routing snapshot. Readers call Lookup on the
// hot path with no locking; the only synchronization is the atomic pointer
// swap inside Reload. A failed reload never disturbs the current snapshot.
type Registry struct {
	store   configstore.Store
	logger  *slog.Logger
	metrics *metric.Metrics

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64

	// reloadMu serializes concurrent Reload calls; the read path never
	// touches it
	reloadMu sync.Mutex
}

// New creates a registry with an empty initial snapshot so Lookup is safe
// before the first reload. metrics may be nil.
func New(store configstore.Store, logger *slog.Logger, metrics *metric.Metrics) (*Registry, error) {
	if store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Registry", "New",
			"configuration store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
	r.current.Store(&Snapshot{
		exact:    map[string]*route.Route{},
		patterns: map[string][]patternRoute{},
		LoadedAt: time.Now(),
	})
	return r, nil
}

// Current returns the current snapshot. Callers hold the returned pointer
// for the duration of one request so a concurrent reload cannot tear their
// view.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Lookup resolves (method, path) against the current snapshot
func (r *Registry) Lookup(method, path string) (*route.Route, map[string]string, bool) {
	return r.Current().Lookup(method, path)
}

// Reload fetches all non-deleted route documents, validates the full set,
// builds a brand-new snapshot and atomically publishes it. In-flight
// requests holding the old snapshot run to completion unaffected.
//
// When the store fails or any document is invalid the previous snapshot
// stays current and the error (wrapping ErrReloadValidation for validation
// failures) is returned to the caller only - a bad edit must never take
// down unrelated routes.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	routes, revision, err := r.store.ListRoutes(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ReloadFailures.Inc()
		}
		return nil, errors.WrapTransient(err, "Registry", "Reload", "list route documents")
	}

	snapshot, err := build(routes)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ReloadFailures.Inc()
		}
		r.logger.Warn("reload rejected, keeping previous snapshot", "error", err)
		return nil, err
	}

	snapshot.Version = r.generation.Add(1)
	snapshot.StoreRevision = revision
	snapshot.LoadedAt = time.Now()

	r.current.Store(snapshot)

	if r.metrics != nil {
		r.metrics.ReloadsTotal.Inc()
		r.metrics.RoutesLoaded.Set(float64(snapshot.Len()))
		r.metrics.SnapshotVersion.Set(float64(snapshot.Version))
	}
	r.logger.Info("routing snapshot published",
		"version", snapshot.Version,
		"store_revision", revision,
		"routes", snapshot.Len())

	return snapshot, nil
}

// build validates the route set and constructs the lookup indexes. All-or-
// nothing: one invalid document rejects the whole reload.
func build(routes []route.Route) (*Snapshot, error) {
	snapshot := &Snapshot{
		exact:    make(map[string]*route.Route, len(routes)),
		patterns: make(map[string][]patternRoute),
	}

	seen := make(map[string]string, len(routes))
	for i := range routes {
		r := &routes[i]
		if r.Deleted {
			// Stores filter tombstones already; skip any that slip through
			continue
		}
		if err := r.Validate(); err != nil {
			return nil, errors.WrapInvalid(errors.ErrReloadValidation, "Registry", "Reload",
				fmt.Sprintf("document %s: %v", r.ID, err))
		}

		key := r.Key()
		if prev, dup := seen[key]; dup {
			return nil, errors.WrapInvalid(errors.ErrReloadValidation, "Registry", "Reload",
				fmt.Sprintf("documents %s and %s both claim %q", prev, r.ID, key))
		}
		seen[key] = r.ID

		if hasParams(r.Path) {
			snapshot.patterns[r.Method] = append(snapshot.patterns[r.Method], patternRoute{
				segments: splitPath(r.Path),
				route:    r,
			})
		} else {
			snapshot.exact[key] = r
		}
	}

	return snapshot, nil
}
