// Package reconcile replays queued mutations against the remote system.
//
// A drain walks the pending-action queue in Seq order, sends each action,
// and rewrites temporary ids to the ids the remote assigns as creations
// succeed. Failed actions stay queued for the next drain; successful ones
// never reappear.
package reconcile
