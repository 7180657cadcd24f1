// Package unifier is the request-scoped coordinator of the gateway. It
// resolves the inbound (method, path) against the current registry
// snapshot, enforces the route's authorization requirement, fans out to
// the route's backends through the dispatcher, applies the route-level
// transform to the keyed result, and serializes the unified body.
//
// Only two failures are terminal for a request: no matching route and a
// route-level authorization rejection, both of which happen before any
// backend call. Everything after that always produces a 200-class
// response, carrying per-service failures as error markers inside the
// body. The package also mounts the administrative surface: POST /reload
// refreshing the registry, GET /healthz and an optional GET /metrics.
package unifier
