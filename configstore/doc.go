// Package configstore defines the configuration-store collaborator
// boundary and its implementations.
//
// The store owns route documents durably; the gateway only reads them, and
// only on explicit reload. Two implementations are provided: MemoryStore
// for tests and single-node development, and KVStore backed by a JetStream
// Key-Value bucket for production. Both return the full set of non-deleted
// documents plus a revision token; snapshot building and validation belong
// to the registry package.
package configstore
