// Package template implements the placeholder resolution engine used by
// every component that builds outbound requests.
//
// Templates use ${name} for scalar substitution, where name is a dotted
// path into the request context tree:
//
//	Resolve("/users/${body.userId}/orders", ctx)
//
// Body templates additionally support the injection form Object(${name}),
// which serializes the value as a nested structure instead of a stringified
// scalar:
//
//	ResolveTree(map[string]any{"meta": "Object(${body.meta})"}, ctx)
//
// # Leniency policy
//
// Unresolved placeholders never abort a call - optional parameters are
// common in practice. The documented policy is: header and query template
// callers drop the affected key (Resolve reports which placeholders were
// missing), body templates resolve whole-string placeholders to nil
// (serialized as JSON null), and interpolated text substitutes the empty
// string.
//
// The engine performs no I/O and is a pure function over its arguments, so
// it is safe for concurrent use without synchronization.
package template
