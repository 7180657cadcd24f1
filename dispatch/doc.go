// Package dispatch executes a route's backend fan-out. Every service
// definition of a matched route runs concurrently on a shared bounded
// worker pool, each call with its own timeout and per-service transform,
// and the keyed results are joined under the route's overall deadline.
//
// Call isolation is the core property: one failing or slow backend
// produces an error entry for its own key and never cancels or taints a
// sibling call. Callers inspect ExecutionResult.Partial to distinguish a
// clean aggregate from a degraded one.
package dispatch
