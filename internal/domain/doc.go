// Package domain defines the rollbook data model.
//
// Entities (Teacher, ClassRoom, Student, AttendanceSession, AttendanceRecord)
// mirror the records held by the remote system of record. PendingAction
// describes a mutation that has been applied locally but not yet confirmed
// remotely; the queue of pending actions is replayed in Seq order.
//
// # Identity
//
// Every id is produced by an IDGenerator. Production uses UUIDv7 so ids sort
// by creation time. Locally synthesized ids look exactly like confirmed ones;
// sync status is carried explicitly (AttendanceSession.Meta, the coordinator's
// tagged results), never inferred from the id string.
//
// # Time
//
// Entity timestamps are time.Time in memory and are persisted with
// FormatTimestamp, a fixed-width UTC layout that sorts lexically.
package domain
