package registry

import (
	"strings"
	"time"

	"github.com/c360/unigate/route"
)

// Snapshot is an immutable view of the routing table at one reload. Exactly
// one snapshot is current at any instant; request handling reads whichever
// snapshot was current when the request arrived and is never affected by a
// later publish.
type Snapshot struct {
	// Version is the reload generation. It advances on every successful
	// reload, even when the underlying documents did not change.
	Version uint64

	// StoreRevision is the store's revision token for the loaded set
	StoreRevision uint64

	// LoadedAt is when this snapshot was built
	LoadedAt time.Time

	// exact indexes wildcard-free patterns by "METHOD path"
	exact map[string]*route.Route

	// patterns indexes parameterized patterns by method
	patterns map[string][]patternRoute
}

// patternRoute is one parameterized path pattern, pre-split into segments
type patternRoute struct {
	segments []string
	route    *route.Route
}

// Lookup finds the route for (method, path). For parameterized patterns the
// bound segment values are returned keyed by parameter name. Exact patterns
// win over parameterized ones.
func (s *Snapshot) Lookup(method, path string) (*route.Route, map[string]string, bool) {
	if r, ok := s.exact[method+" "+path]; ok {
		return r, nil, true
	}

	want := splitPath(path)
	for _, pr := range s.patterns[method] {
		if params, ok := matchSegments(pr.segments, want); ok {
			return pr.route, params, true
		}
	}
	return nil, nil, false
}

// Len returns the number of routes in the snapshot
func (s *Snapshot) Len() int {
	n := len(s.exact)
	for _, prs := range s.patterns {
		n += len(prs)
	}
	return n
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func hasParams(path string) bool {
	for _, seg := range splitPath(path) {
		if strings.HasPrefix(seg, ":") {
			return true
		}
	}
	return false
}

func matchSegments(pattern, want []string) (map[string]string, bool) {
	if len(pattern) != len(want) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if want[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = want[i]
			continue
		}
		if seg != want[i] {
			return nil, false
		}
	}
	return params, true
}
