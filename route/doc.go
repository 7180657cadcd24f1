// Package route defines the routing data model: Route, ServiceDefinition
// and TransformSpec, mirroring the documents persisted in the external
// configuration store.
//
// Documents are created and edited in the store; the gateway only ever
// loads them into immutable registry snapshots on startup and on explicit
// reload. A Route is never mutated in place - edits produce a new document
// version, observed on the next reload. Validation happens at load time so
// that a malformed document can never enter a published snapshot.
package route
