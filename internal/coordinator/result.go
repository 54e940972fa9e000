package coordinator

// State tags how far a write got.
type State string

const (
	// Confirmed means the remote accepted the write.
	Confirmed State = "confirmed"

	// Optimistic means the write was applied locally and queued.
	Optimistic State = "optimistic"

	// Skipped means the write had no target and did nothing.
	Skipped State = "skipped"
)

// Result is the outcome of a coordinator write.
type Result[T any] struct {
	Value T
	State State

	// PendingActionID is the queued action for an Optimistic result.
	PendingActionID string
}

// Optimistic reports whether the value is not yet confirmed remotely.
func (r Result[T]) Optimistic() bool {
	return r.State == Optimistic
}

// Status is the coordinator's view of synchronisation.
type Status struct {
	Online  bool
	Pending int
}
