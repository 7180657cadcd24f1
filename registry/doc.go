// Package registry maintains the hot-swappable routing table as immutable
// snapshots behind a single atomically swapped reference.
//
// Reload is build-then-publish: the new snapshot is fully constructed and
// validated before the pointer swap, so readers never observe a partial
// update and never block. Requests capture one snapshot reference up front
// and use it end to end, which gives each request a self-consistent view
// even when a reload lands mid-flight.
package registry
