// Package auth propagates credentials onto outbound backend calls.
//
// The propagator dispatches on each service definition's authKind: none
// adds nothing, basic resolves a configured credential pair into a
// "Basic <base64>" header, and bearer/delegated resolve a token from the
// injected TokenSource into a "Bearer <token>" header. Delegated tokens
// act on behalf of the inbound caller and are resolved per identity;
// bearer tokens are service credentials shared across callers.
//
// Failing to resolve a required credential fails only the one backend call
// it guards - the dispatcher records the failure under that service's
// result key and sibling calls proceed.
package auth
