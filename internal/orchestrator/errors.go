package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by LaunchRound while a round is in progress.
	ErrAlreadyRunning = errors.New("a round is already running")

	// ErrExecutableNotFound is returned when the server path does not exist.
	ErrExecutableNotFound = errors.New("server executable not found")

	// ErrExecutableNotRunnable is returned when the server path exists but is
	// not an executable file.
	ErrExecutableNotRunnable = errors.New("server executable not runnable")

	// ErrInvalidRounds is returned when the round count is outside [MinRounds, MaxRounds].
	ErrInvalidRounds = errors.New("round count out of range")

	// ErrNoServerPath is returned when no server path was configured.
	ErrNoServerPath = errors.New("no server path configured")

	// ErrClosed is returned by LaunchRound after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// UncleanExitError describes a server that exited with a nonzero status.
// It is informational: the round is still resolved.
type UncleanExitError struct {
	ExitCode int
}

func (e *UncleanExitError) Error() string {
	return fmt.Sprintf("Server finished with unclean status %d!", e.ExitCode)
}

// UserMessage returns a dialog title and message for an error returned by
// LaunchRound. Unknown errors fall back to the error text.
func UserMessage(err error) (title, message string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, ErrAlreadyRunning):
		return "Already running", "The server is already running!"
	case errors.Is(err, ErrExecutableNotFound), errors.Is(err, ErrNoServerPath):
		return "Server not found", "Can't find the server at the path provided!"
	case errors.Is(err, ErrExecutableNotRunnable):
		return "Server not runnable", "The server is not an executable file!"
	case errors.Is(err, ErrInvalidRounds):
		return "Invalid rounds", fmt.Sprintf("Rounds must be between %d and %d.", MinRounds, MaxRounds)
	default:
		return "Launch failed", err.Error()
	}
}
