package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrAlreadyRunning is returned by Start while a process is active.
	ErrAlreadyRunning = errors.New("process already running")

	// ErrNotFound is returned when the executable path does not exist.
	ErrNotFound = errors.New("executable not found")

	// ErrNotExecutable is returned when the path exists but cannot be executed.
	ErrNotExecutable = errors.New("not an executable file")
)

// CheckExecutable reports whether path names an existing, executable regular file.
// The returned error wraps ErrNotFound or ErrNotExecutable.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("%w: %w", ErrNotExecutable, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotExecutable, path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s has no execute permission", ErrNotExecutable, path)
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotExecutable, path, err)
	}
	return nil
}

// classifyStartError maps an exec start failure onto the typed errors.
func classifyStartError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrNotExecutable, path, err)
}
