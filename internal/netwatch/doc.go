// Package netwatch tracks whether the remote system is reachable.
//
// A Monitor probes on a fixed interval while it has subscribers and tells
// them about status transitions only, so a flapping-free steady state never
// triggers redundant sync attempts.
package netwatch
