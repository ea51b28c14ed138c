package supervisor

import (
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-borg-arena/internal/stream"
)

const (
	// DefaultGraceInterval is the wait between SIGTERM and SIGKILL.
	DefaultGraceInterval = 200 * time.Millisecond

	// DefaultWaitDelay bounds how long Wait keeps reading output after the
	// process exits, for children that leave stdout open in a grandchild.
	DefaultWaitDelay = 2 * time.Second

	// killTimeout bounds how long Stop waits for reaping after SIGKILL.
	killTimeout = 5 * time.Second
)

// Callbacks contains optional callback functions for supervisor events.
// Callbacks run on supervisor goroutines and must not call Start or Stop.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(name string, oldState, newState State)

	// OnStart is called once the process has been spawned.
	OnStart func(name string, pid int)

	// OnOutput is called for every line of stdout (normal) and stderr (error),
	// in the order each stream produced them.
	OnOutput func(ev stream.Event)

	// OnExit is called exactly once per process, after all of its output
	// has been delivered through OnOutput. It must not block.
	OnExit func(name string, exitCode int, uptime time.Duration)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	// Name identifies the process in events and logs ("server" or a bot name).
	Name          string
	Logger        *slog.Logger
	Callbacks     Callbacks
	GraceInterval time.Duration
	WaitDelay     time.Duration
}

// Supervisor owns at most one running process at a time.
type Supervisor struct {
	name      string
	logger    *slog.Logger
	callbacks Callbacks
	grace     time.Duration
	waitDelay time.Duration

	// mu serializes Start and Stop.
	mu sync.Mutex

	stateMu   sync.RWMutex
	state     State
	cmd       *exec.Cmd
	done      chan struct{}
	startTime time.Time
	workDir   string
	path      string
	lastExit  int
	starts    int
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	grace := cfg.GraceInterval
	if grace <= 0 {
		grace = DefaultGraceInterval
	}
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}
	name := cfg.Name
	if name == "" {
		name = stream.SourceServer
	}

	done := make(chan struct{})
	close(done)

	return &Supervisor{
		name:      name,
		logger:    logger,
		callbacks: cfg.Callbacks,
		grace:     grace,
		waitDelay: waitDelay,
		state:     StateIdle,
		done:      done,
		lastExit:  -1,
	}
}

// Start spawns path with args in workDir and returns without waiting for it.
// It fails with ErrAlreadyRunning, ErrNotFound or ErrNotExecutable; no process
// is spawned in any of those cases.
func (s *Supervisor) Start(path, workDir string, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State().IsActive() {
		return ErrAlreadyRunning
	}
	if err := CheckExecutable(path); err != nil {
		return err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = workDir
	cmd.WaitDelay = s.waitDelay

	// Own process group so Stop reaches anything the process spawns
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	s.setState(StateStarting)
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		s.setState(StateIdle)
		s.logger.Error("process_start_failed",
			"name", s.name,
			"path", path,
			"error", err,
		)
		return classifyStartError(path, err)
	}

	done := make(chan struct{})
	startTime := time.Now()

	s.stateMu.Lock()
	s.cmd = cmd
	s.done = done
	s.startTime = startTime
	s.workDir = workDir
	s.path = path
	s.starts++
	s.stateMu.Unlock()

	pid := cmd.Process.Pid
	s.setState(StateRunning)

	s.logger.Info("process_started",
		"name", s.name,
		"pid", pid,
		"path", path,
		"dir", workDir,
		"args", args,
	)

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.name, pid)
	}

	stdout := stream.NewPipeReader(stdoutR, s.name, stream.SeverityNormal, s.emit)
	stderr := stream.NewPipeReader(stderrR, s.name, stream.SeverityError, s.emit)
	go stdout.Run()
	go stderr.Run()

	go s.wait(cmd, done, startTime, stdoutW, stderrW, stdout, stderr)

	return nil
}

// wait reaps the process, waits for both readers to drain and then reports the exit.
func (s *Supervisor) wait(cmd *exec.Cmd, done chan struct{}, startTime time.Time,
	stdoutW, stderrW *io.PipeWriter, readers ...*stream.PipeReader) {

	waitErr := cmd.Wait()
	uptime := time.Since(startTime)

	// Reaped: the pid may be reused from here on, so Stop must not signal it
	s.stateMu.Lock()
	s.cmd = nil
	s.stateMu.Unlock()

	// exec has finished copying into the pipes; EOF lets the readers flush
	// any final partial line
	stdoutW.Close()
	stderrW.Close()
	for _, r := range readers {
		<-r.Done()
	}

	exitCode := extractExitCode(waitErr)
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		s.logger.Warn("process_output_left_open",
			"name", s.name,
			"pid", cmd.Process.Pid,
		)
		exitCode = cmd.ProcessState.ExitCode()
	}

	s.stateMu.Lock()
	s.lastExit = exitCode
	s.stateMu.Unlock()

	s.setState(StateExited)

	s.logger.Info("process_exited",
		"name", s.name,
		"pid", cmd.Process.Pid,
		"exit_code", exitCode,
		"uptime", uptime.String(),
	)

	// Done closes after OnExit so Stop returns with the exit already reported
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(s.name, exitCode, uptime)
	}
	close(done)
}

func (s *Supervisor) emit(ev stream.Event) {
	if s.callbacks.OnOutput != nil {
		s.callbacks.OnOutput(ev)
	}
}

// Stop sends SIGTERM to the process group, waits the grace interval, then
// sends SIGKILL regardless of the outcome and waits for the process to be
// reaped. It is a no-op when nothing is running and safe to call repeatedly.
// A process that exits on its own while Stop runs is left exited.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, done, ok := s.beginStop()
	if !ok {
		return
	}
	if cmd == nil {
		// Already reaped; wait for its exit to be reported
		select {
		case <-done:
		case <-time.After(killTimeout):
			s.logger.Warn("process_exit_report_timeout", "name", s.name)
		}
		return
	}

	pid := cmd.Process.Pid
	s.logger.Debug("process_terminating", "name", s.name, "pid", pid)
	s.signal(cmd, syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(s.grace):
	}

	s.signal(cmd, syscall.SIGKILL)

	select {
	case <-done:
	case <-time.After(killTimeout):
		s.logger.Warn("process_kill_timeout",
			"name", s.name,
			"pid", pid,
			"timeout", killTimeout.String(),
		)
	}
}

// beginStop moves an active, unreaped process to StateStopping under one
// lock. It returns the process to signal, or nil when the process has been
// reaped but its exit is still being reported. ok is false when nothing is
// active.
func (s *Supervisor) beginStop() (cmd *exec.Cmd, done chan struct{}, ok bool) {
	s.stateMu.Lock()
	if !s.state.IsActive() {
		s.stateMu.Unlock()
		return nil, nil, false
	}
	cmd, done = s.cmd, s.done
	oldState := s.state
	if cmd != nil {
		s.state = StateStopping
	}
	s.stateMu.Unlock()

	if cmd != nil && oldState != StateStopping && s.callbacks.OnStateChange != nil {
		s.callbacks.OnStateChange(s.name, oldState, StateStopping)
	}
	return cmd, done, true
}

// signal signals the process group of cmd unless cmd has been reaped.
func (s *Supervisor) signal(cmd *exec.Cmd, sig syscall.Signal) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.cmd != cmd || cmd.Process == nil {
		return
	}
	signalGroup(cmd, sig)
}

// signalGroup signals the whole process group, falling back to the process.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		cmd.Process.Signal(sig)
	}
}

// IsRunning reports whether a process is currently active.
func (s *Supervisor) IsRunning() bool {
	return s.State().IsActive()
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(s.name, oldState, newState)
	}
}

// Done returns a channel closed when the current (or last) process has exited
// and OnExit has returned.
func (s *Supervisor) Done() <-chan struct{} {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.done
}

// Name returns the name used to tag this supervisor's events.
func (s *Supervisor) Name() string {
	return s.name
}

// WorkDir returns the working directory of the current or last process.
func (s *Supervisor) WorkDir() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.workDir
}

// Path returns the executable path of the current or last process.
func (s *Supervisor) Path() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.path
}

// PID returns the pid of the running process, or 0.
func (s *Supervisor) PID() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// LastExitCode returns the exit code of the last process, or -1 if none has exited.
func (s *Supervisor) LastExitCode() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastExit
}

// Starts returns how many processes this supervisor has spawned.
func (s *Supervisor) Starts() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.starts
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.cmd == nil {
		return 0
	}
	return time.Since(s.startTime)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
