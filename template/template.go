package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360/unigate/errors"
)

// placeholderPattern matches ${name} where name is a dotted path into the
// context tree (e.g. ${body.user.id}, ${header.X-Org-Id}).
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\}`)

// objectPattern matches the injection form Object(${name}). It only applies
// when it spans an entire string value inside ResolveTree - embedded in
// larger text it degrades to scalar substitution.
var objectPattern = regexp.MustCompile(`^Object\(\$\{([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\}\)$`)

// Lookup resolves a dotted path against a context tree of maps, slices and
// scalars. List elements are addressed by decimal index. Returns false when
// any path segment is absent.
func Lookup(context map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = context
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// Resolve substitutes every ${name} placeholder in tmpl with the scalar
// string form of the value at that path in context.
//
// Resolution is lenient: unresolved placeholders substitute as the empty
// string and the returned error (wrapping ErrTemplateUnresolved) names them,
// so callers can decide whether to drop the field or keep the partial
// result. The returned string is always the best-effort resolution.
func Resolve(tmpl string, context map[string]any) (string, error) {
	var unresolved []string

	resolved := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := Lookup(context, path)
		if !ok {
			unresolved = append(unresolved, path)
			return ""
		}
		return Stringify(value)
	})

	if len(unresolved) > 0 {
		return resolved, errors.Wrap(errors.ErrTemplateUnresolved, "template", "Resolve",
			fmt.Sprintf("placeholders %s", strings.Join(unresolved, ", ")))
	}
	return resolved, nil
}

// ResolveTree structurally resolves a body template against the context.
//
// String leaves are resolved with three policies, checked in order:
//
//  1. "Object(${name})" spanning the whole string injects the value at name
//     as a nested structure rather than its stringified form.
//  2. "${name}" spanning the whole string substitutes the typed value, so
//     numbers and booleans survive as numbers and booleans.
//  3. Any other string is resolved with Resolve for text interpolation.
//
// Unresolved placeholders in cases 1 and 2 yield nil (serialized as JSON
// null); case 3 follows Resolve's empty-string policy. ResolveTree never
// fails - the leniency policy means missing optional parameters produce
// null markers, not errors.
func ResolveTree(tmpl any, context map[string]any) any {
	switch node := tmpl.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			out[key] = ResolveTree(value, context)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, value := range node {
			out[i] = ResolveTree(value, context)
		}
		return out
	case string:
		return resolveString(node, context)
	default:
		// Non-string scalars pass through untouched
		return node
	}
}

// resolveString applies the three string-leaf policies from ResolveTree.
func resolveString(s string, context map[string]any) any {
	if m := objectPattern.FindStringSubmatch(s); m != nil {
		value, ok := Lookup(context, m[1])
		if !ok {
			return nil
		}
		return value
	}

	if m := placeholderPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		value, ok := Lookup(context, m[1])
		if !ok {
			return nil
		}
		return value
	}

	resolved, _ := Resolve(s, context)
	return resolved
}

// Stringify renders a context value as a scalar string for URL, header and
// query substitution.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
