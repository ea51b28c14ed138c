// Package supervisor owns the lifecycle of one externally launched process.
package supervisor

// State represents the lifecycle state of a supervised process.
type State int

const (
	// StateIdle is the initial state: nothing has been launched yet.
	StateIdle State = iota

	// StateStarting indicates the process is being spawned.
	StateStarting

	// StateRunning indicates the process is alive.
	StateRunning

	// StateStopping indicates a terminate/kill sequence is in progress.
	StateStopping

	// StateExited indicates the last process has exited and been reaped.
	StateExited
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsActive returns true while a process exists (starting, running or stopping).
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}
