// Package capture walks a class roster one student at a time and records
// each student's attendance through the coordinator.
//
// The walk is an explicit state machine. Every transition names the phase
// it starts from and is rejected from any other, which is how racing UI
// events (a second tap while a record is in flight, a focus event during
// completion) become harmless no-ops.
//
//	NotStarted ──Start──▶ Starting ──▶ InProgress ──Record──▶ Recording ─┐
//	     ▲                                 ▲  │                          │
//	     │                                 └──┼──────────────────────────┤
//	     │                                Finish                   last student
//	     │                                    ▼                          │
//	 StartNew ◀── Completed ◀──Acknowledge── Completing ◀────────────────┘
package capture
