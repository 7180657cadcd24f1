// Package transform reshapes JSON-like trees in two stages: a per-service
// transform applied to each raw backend response inside the dispatcher,
// and an optional route-level transform applied to the merged keyed result
// map in the façade.
//
// Two forms are supported. Declarative field mappings copy values from
// dotted source paths to dotted target paths, tolerating missing sources
// (a failed service maps to an explicit null). Scripted transforms are
// named expr expressions held in a ScriptRegistry: compiled once, pure and
// sandboxed, with a fixed tree-in/tree-out contract.
package transform
