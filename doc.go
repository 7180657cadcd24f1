// Package unigate provides a dynamic API unification gateway: a single
// configurable HTTP surface in front of many independently owned backend
// services.
//
// # Architecture
//
// For each inbound request the gateway resolves a Route from an immutable,
// hot-swappable routing snapshot, fans out to the route's backend calls in
// parallel, merges their heterogeneous responses into one unified payload,
// and returns it. Routing configuration lives in an external document store
// and is re-read on explicit reload without restarting the process.
//
// The core packages, leaves first:
//
//   - template: pure ${name} placeholder resolution for URLs, headers,
//     query parameters and structured bodies
//   - route: the Route / ServiceDefinition / TransformSpec data model
//   - configstore: the document-store boundary (in-memory and JetStream KV
//     implementations)
//   - registry: immutable routing snapshots behind a single atomic
//     reference, rebuilt on reload
//   - auth: credential propagation for outbound calls (basic, bearer,
//     delegated)
//   - transform: declarative field mapping and sandboxed scripted
//     transforms over JSON-like trees
//   - dispatch: bounded-concurrency fan-out with per-call isolation
//   - unifier: the request-scoped façade wiring all of the above
//
// Supporting packages: errors (classified error handling), metric
// (Prometheus registration), config (engine settings), natsclient (NATS
// connection management), pkg/worker (bounded worker pool), pkg/cache
// (token caching), pkg/retry (backoff).
//
// # Concurrency model
//
// The only long-lived shared mutable state is the current routing snapshot
// reference, swapped atomically on reload; request handling never locks on
// it. Fan-out runs on a bounded worker pool shared across requests so that
// traffic spikes cap outbound pressure instead of spawning unbounded
// goroutines. A failing or slow backend call produces an error marker for
// its own result key and never affects sibling calls.
package unigate
