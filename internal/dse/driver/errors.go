package driver

import "fmt"

// Phase names the life-cycle step of a design point that failed.
type Phase string

const (
	PhaseStart     Phase = "start"
	PhaseConfigure Phase = "configure"
	PhaseRecipe    Phase = "recipe"
	PhaseLaunch    Phase = "launch"
	PhaseAwait     Phase = "await"
)

// ExecutionError is recorded when the runtime fails for one point. It does
// not stop the exploration.
type ExecutionError struct {
	Phase Phase
	Label string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Label, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TeardownError is returned by the runtime Stop call. The exploration
// continues, but later points may observe leftover runtime state.
type TeardownError struct {
	Label string
	Err   error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown %s: %v", e.Label, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
