// Package cache is the device-local copy of domain state and the queue of
// pending actions.
//
// A Cache persists four documents in a store.KV: the teacher, the classes
// (with rosters), the attendance sessions (with records) and the pending
// action queue. Together they form the domain.Snapshot the application
// hydrates from before any network call completes.
//
// # Guarantees
//
//   - Every mutating call is durable before it returns.
//   - Mutations are read-modify-write under one mutex and are written with
//     KV.SetMany when they touch more than one document, so no caller ever
//     observes a half-applied change.
//   - A document that is absent or cannot be decoded loads as its empty
//     default and is logged. Startup never fails because of the cache.
//   - Within a session, records are keyed by student id. UpdateRecord
//     replaces, never appends.
package cache
