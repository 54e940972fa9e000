// Package store provides the durable key/value backends used by the local
// cache.
//
// Three implementations satisfy KV:
//   - Store: SQLite, the default on-device backend
//   - Badger: BadgerDB, for deployments that prefer an LSM store
//   - Memory: map-backed, for tests
//
// # Guarantees
//
//   - Set and SetMany are durable before they return (no fire-and-forget)
//   - SetMany is all-or-nothing: a concurrent reader sees either every
//     entry of the batch or none of them
//   - A missing key is reported as ok=false, never as an error
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: a committed write survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite supports one writer at a time
package store
