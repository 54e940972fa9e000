// Package remote is the boundary to the system of record.
//
// Remote is the narrow interface the core depends on. Three pieces
// implement or expose it:
//   - Client speaks the JSON/HTTP API
//   - Memory is an in-process system of record used by tests and the
//     development server
//   - NewServer serves any Remote over the same JSON/HTTP API with gin
//
// # Error taxonomy
//
// Every failure is an *Error carrying a Code. Codes split into transient
// (UNAVAILABLE, TIMEOUT, SERVER) and permanent (INVALID, FORBIDDEN,
// NOT_FOUND, CONFLICT). Callers fall back to the offline queue on transient
// failures and surface permanent ones, since retrying cannot help. Errors
// that are not *Error are treated as transient.
package remote
