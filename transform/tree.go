package transform

import (
	"strings"

	"github.com/c360/unigate/template"
)

// Get resolves a dotted path in a JSON-like tree. Missing paths return
// (nil, false); callers decide whether that is a null marker or an error.
func Get(tree map[string]any, path string) (any, bool) {
	return template.Lookup(tree, path)
}

// Set writes value at a dotted path in out, creating intermediate maps as
// needed. An existing non-map value on the path is replaced by a map - the
// later mapping wins, which keeps declarative mappings order-dependent and
// deterministic.
func Set(out map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := out

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}
