package domain

// DriverState is a phase of the exploration state machine:
//
//	init -> enumerating -> (pruning <-> executing) -> done
//
// pruning returns to enumerating when a point is discarded; executing
// always returns to enumerating once the runtime has been stopped.
type DriverState string

const (
	DriverStateInit        DriverState = "init"
	DriverStateEnumerating DriverState = "enumerating"
	DriverStatePruning     DriverState = "pruning"
	DriverStateExecuting   DriverState = "executing"
	DriverStateDone        DriverState = "done"
)

// CanTransitionDriverState reports whether next may follow current.
func CanTransitionDriverState(current, next DriverState) bool {
	switch current {
	case DriverStateInit:
		return next == DriverStateEnumerating || next == DriverStateDone
	case DriverStateEnumerating:
		return next == DriverStatePruning || next == DriverStateDone
	case DriverStatePruning:
		return next == DriverStateEnumerating || next == DriverStateExecuting
	case DriverStateExecuting:
		return next == DriverStateEnumerating
	default:
		return false
	}
}
