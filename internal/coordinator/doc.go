// Package coordinator owns the in-memory view of the teacher's data and
// routes every write either to the remote system or, when that is not
// possible, to the local queue.
//
// Writes are remote-first. When the remote is believed unreachable, or a
// call fails transiently, the coordinator synthesizes the entity under a
// temporary id, persists it, queues a PendingAction and returns it tagged
// as optimistic. Permanent rejections are returned as errors and never
// queued.
package coordinator
