package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-borg-arena/internal/metrics"
	"github.com/randomizedcoder/go-borg-arena/internal/scores"
	"github.com/randomizedcoder/go-borg-arena/internal/stream"
	"github.com/randomizedcoder/go-borg-arena/internal/supervisor"
)

const (
	// DefaultBotLaunchDelay is how long after the server starts the bots are
	// launched, giving the server time to open its listening socket. It is a
	// soft synchronization point, not a handshake.
	DefaultBotLaunchDelay = time.Second

	// resolveTimeout bounds how long Kill waits for the exit to be resolved.
	resolveTimeout = 10 * time.Second
)

// Diagnostic text written to the output sink.
const (
	msgNoWinner         = "No winner found, round aborted"
	msgUnreadableTitle  = "Unable to open server log"
	msgUnreadableDetail = "Unable to open server log with results"
)

// BotManager launches and kills the enabled bots and records round outcomes.
type BotManager interface {
	// EnabledPlayerCount is queried before the server arguments are built.
	EnabledPlayerCount() int

	// LaunchBots starts the enabled bots and must not block for long.
	LaunchBots(ctx context.Context)

	// KillBots stops every running bot. It is safe to call with none running.
	KillBots()

	// ReportRoundOver records the winner exactly as the server reported it.
	ReportRoundOver(winner string)
}

// Warner shows a user-facing warning, such as a dialog in the dashboard.
type Warner interface {
	Warn(title, message string)
}

// Callbacks contains optional callback functions for round events. They run
// on the coordinating loop and must not call Kill or Close.
type Callbacks struct {
	OnRoundStart func(r Round)
	OnRoundOver  func(res MatchResult)
}

// Config holds configuration for creating a new Orchestrator.
type Config struct {
	Logger    *slog.Logger
	Bots      BotManager
	Sink      stream.Sink
	Warner    Warner
	Metrics   *metrics.Collector
	Callbacks Callbacks

	BotLaunchDelay time.Duration
	GraceInterval  time.Duration
}

// Round describes a launched server process.
type Round struct {
	ID        uuid.UUID
	Params    TournamentParameters
	Args      []string
	WorkDir   string
	StartedAt time.Time
	PID       int
}

// MatchResult is the outcome of one round, produced after the server exited.
type MatchResult struct {
	RoundID   uuid.UUID
	Winner    string
	Resolved  bool
	ExitCode  int
	CleanExit bool
	Killed    bool
	Duration  time.Duration

	// Err is scores.ErrArtifactUnreadable or scores.ErrArtifactEmpty for
	// unresolved rounds.
	Err error
}

// Outcome returns the metrics outcome label for the result.
func (r MatchResult) Outcome() string {
	switch {
	case r.Resolved:
		return metrics.OutcomeWinner
	case errors.Is(r.Err, scores.ErrArtifactUnreadable):
		return metrics.OutcomeUnreadable
	default:
		return metrics.OutcomeNoWinner
	}
}

// activeRound is the per-round transient state, dropped once the round resolves.
type activeRound struct {
	Round
	timer        *time.Timer
	botsLaunched bool
	killed       bool
	resolved     chan struct{}
}

// Orchestrator runs rounds: it launches the server, triggers the bots and
// judges the result once the server exits.
//
// State changes happen on the loop started by Run; LaunchRound, Kill and the
// accessors may be called from any goroutine.
type Orchestrator struct {
	logger    *slog.Logger
	bots      BotManager
	sink      stream.Sink
	warner    Warner
	metrics   *metrics.Collector
	callbacks Callbacks
	botDelay  time.Duration

	server *supervisor.Supervisor
	queue  *eventQueue

	mu      sync.Mutex
	current *activeRound
	last    *MatchResult
	rounds  int
	closed  bool

	runMu    sync.Mutex
	runCtx   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	// Held by whichever goroutine is processing queued events
	loopMu sync.Mutex
}

// New creates a new Orchestrator. Call Run to start processing events.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	delay := cfg.BotLaunchDelay
	if delay <= 0 {
		delay = DefaultBotLaunchDelay
	}

	o := &Orchestrator{
		logger:    logger,
		bots:      cfg.Bots,
		sink:      cfg.Sink,
		warner:    cfg.Warner,
		metrics:   cfg.Metrics,
		callbacks: cfg.Callbacks,
		botDelay:  delay,
		queue:     newEventQueue(),
		loopDone:  make(chan struct{}),
	}

	o.server = supervisor.New(supervisor.Config{
		Name:          stream.SourceServer,
		Logger:        logger,
		GraceInterval: cfg.GraceInterval,
		Callbacks: supervisor.Callbacks{
			OnOutput: func(ev stream.Event) {
				o.queue.push(func() { o.deliver(ev) })
			},
			OnExit: func(_ string, exitCode int, uptime time.Duration) {
				o.queue.push(func() { o.handleExit(exitCode, uptime) })
			},
		},
	})

	return o
}

// Run processes output, exit and timer events until ctx is done, then kills
// any running round and resolves it. It may only be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.runMu.Lock()
	if o.runCtx != nil {
		o.runMu.Unlock()
		return errors.New("orchestrator already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.runCtx = ctx
	o.cancel = cancel
	o.runMu.Unlock()

	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	defer close(o.loopDone)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.closed = true
			o.mu.Unlock()

			o.teardown("shutdown")
			o.processPending()
			o.logger.Debug("orchestrator_stopped", "rounds", o.Rounds())
			return nil
		case <-o.queue.notify:
			o.processPending()
		}
	}
}

func (o *Orchestrator) processPending() {
	for {
		items := o.queue.drain()
		if len(items) == 0 {
			return
		}
		for _, fn := range items {
			fn()
		}
	}
}

// drainIfIdle processes queued events on the calling goroutine when no loop
// is doing so.
func (o *Orchestrator) drainIfIdle() {
	if !o.loopMu.TryLock() {
		return
	}
	defer o.loopMu.Unlock()
	o.processPending()
}

func (o *Orchestrator) runContext() context.Context {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.runCtx == nil {
		return context.Background()
	}
	return o.runCtx
}

// LaunchRound validates params, starts the server and schedules the bot
// launch. Validation failures spawn nothing. The enabled player count is taken
// from the BotManager, and the map is passed only if the file exists.
func (o *Orchestrator) LaunchRound(params TournamentParameters) (Round, error) {
	o.mu.Lock()

	if o.closed {
		o.mu.Unlock()
		return Round{}, ErrClosed
	}
	if o.current != nil || o.server.IsRunning() {
		o.mu.Unlock()
		return Round{}, ErrAlreadyRunning
	}
	if params.Rounds < MinRounds || params.Rounds > MaxRounds {
		o.mu.Unlock()
		return Round{}, fmt.Errorf("%w: %d", ErrInvalidRounds, params.Rounds)
	}
	if params.ServerPath == "" {
		o.mu.Unlock()
		return Round{}, ErrNoServerPath
	}
	if err := supervisor.CheckExecutable(params.ServerPath); err != nil {
		o.mu.Unlock()
		return Round{}, launchError(err)
	}

	if o.bots != nil {
		params.EnabledPlayers = o.bots.EnabledPlayerCount()
	}
	params.MapPath = existingMap(params.MapPath)
	args := BuildArguments(params)
	workDir := ServerWorkDir(params.ServerPath)

	if err := o.server.Start(params.ServerPath, workDir, args); err != nil {
		o.mu.Unlock()
		return Round{}, launchError(err)
	}

	r := &activeRound{
		Round: Round{
			ID:        uuid.New(),
			Params:    params,
			Args:      args,
			WorkDir:   workDir,
			StartedAt: time.Now(),
			PID:       o.server.PID(),
		},
		resolved: make(chan struct{}),
	}
	r.timer = time.AfterFunc(o.botDelay, func() {
		o.queue.push(func() { o.launchBots(r) })
	})
	o.current = r
	o.rounds++
	o.mu.Unlock()

	o.logger.Info("server_started",
		"round_id", r.ID.String(),
		"pid", r.PID,
		"args", args,
		"dir", workDir,
		"bot_delay", o.botDelay.String(),
	)

	if o.metrics != nil {
		o.metrics.RoundStarted()
		o.metrics.SetEnabledBots(params.EnabledPlayers)
	}
	if o.callbacks.OnRoundStart != nil {
		o.callbacks.OnRoundStart(r.Round)
	}

	return r.Round, nil
}

// launchError maps supervisor start errors onto the launch taxonomy.
func launchError(err error) error {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return ErrAlreadyRunning
	case errors.Is(err, supervisor.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrExecutableNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrExecutableNotRunnable, err)
	}
}

// launchBots runs on the loop when the bot timer fires.
func (o *Orchestrator) launchBots(r *activeRound) {
	ctx := o.runContext()

	// Held across LaunchBots so teardown cannot slip in between the
	// killed check and the launch being registered with the roster.
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r || r.killed || r.botsLaunched {
		return
	}
	r.botsLaunched = true

	if o.bots == nil {
		return
	}
	o.logger.Info("bots_launching", "round_id", r.ID.String())
	o.bots.LaunchBots(ctx)
}

func (o *Orchestrator) deliver(ev stream.Event) {
	stream.Deliver(o.sink, ev)
	if o.metrics != nil {
		o.metrics.OutputLine(ev.Severity)
	}
}

// handleExit runs the result-resolution protocol on the loop.
func (o *Orchestrator) handleExit(exitCode int, uptime time.Duration) {
	o.mu.Lock()
	r := o.current
	if r == nil {
		o.mu.Unlock()
		o.logger.Warn("server_exit_without_round", "exit_code", exitCode)
		return
	}
	r.timer.Stop()
	o.mu.Unlock()

	// Bots outlive a server that died early
	if o.bots != nil {
		o.bots.KillBots()
	}

	result := MatchResult{
		RoundID:   r.ID,
		ExitCode:  exitCode,
		CleanExit: exitCode == 0,
		Killed:    r.killed,
		Duration:  time.Since(r.StartedAt),
	}

	label := filepath.Base(r.Params.ServerPath)
	o.logger.Info("server_finished",
		"round_id", r.ID.String(),
		"label", label,
		"exit_code", exitCode,
		"uptime", uptime.String(),
		"killed", r.killed,
	)
	o.normalOutput(label + " finished")
	if exitCode != 0 {
		o.errorOutput((&UncleanExitError{ExitCode: exitCode}).Error())
	}

	o.resolve(r, &result)

	if o.metrics != nil {
		o.metrics.RoundFinished(result.Outcome(), result.Winner, exitCode, result.Duration)
	}

	o.mu.Lock()
	o.current = nil
	o.last = &result
	o.mu.Unlock()
	close(r.resolved)

	if o.callbacks.OnRoundOver != nil {
		o.callbacks.OnRoundOver(result)
	}
}

// resolve reads the winner from the artifact in the server's working
// directory. The artifact is deleted whenever it could be opened.
func (o *Orchestrator) resolve(r *activeRound, result *MatchResult) {
	path := ArtifactPath(r.WorkDir)

	winner, err := scores.ReadWinner(path)
	switch {
	case errors.Is(err, scores.ErrArtifactUnreadable):
		result.Err = err
		o.logger.Warn("result_artifact_unreadable",
			"round_id", r.ID.String(),
			"path", path,
			"error", err,
		)
		o.warn(msgUnreadableTitle, msgUnreadableDetail)
		return
	case errors.Is(err, scores.ErrArtifactEmpty):
		result.Err = err
		o.logger.Warn("no_winner_found", "round_id", r.ID.String(), "path", path)
		o.errorOutput(msgNoWinner)
	case err != nil:
		// ReadWinner only returns the two sentinels
		result.Err = err
		o.errorOutput(err.Error())
	default:
		result.Winner = winner
		result.Resolved = true
		o.logger.Info("round_resolved", "round_id", r.ID.String(), "winner", winner)
		if o.bots != nil {
			o.bots.ReportRoundOver(winner)
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("result_artifact_remove_failed", "path", path, "error", err)
		o.errorOutput(fmt.Sprintf("Unable to remove %s: %v", path, err))
	}
}

func (o *Orchestrator) normalOutput(text string) {
	o.deliver(stream.Event{Time: time.Now(), Source: stream.SourceServer, Text: text})
}

func (o *Orchestrator) errorOutput(text string) {
	o.deliver(stream.Event{
		Time:     time.Now(),
		Source:   stream.SourceServer,
		Severity: stream.SeverityError,
		Text:     text,
	})
}

// warn shows a warning and records it in the output.
func (o *Orchestrator) warn(title, message string) {
	if o.warner != nil {
		o.warner.Warn(title, message)
	}
	o.errorOutput(message)
}

// Kill stops the server (terminate, grace interval, force kill) and all bots,
// then waits until the exit has been resolved. It is safe to call at any
// time and any number of times. Without a running loop the pending events are
// processed by the caller, so the round is still resolved.
func (o *Orchestrator) Kill() {
	r := o.teardown("kill")
	if r == nil {
		return
	}
	o.drainIfIdle()

	select {
	case <-r.resolved:
	case <-o.loopDone:
	case <-time.After(resolveTimeout):
		o.logger.Warn("kill_resolve_timeout", "round_id", r.ID.String())
	}
}

// teardown stops the server and the bots and returns the round that was active.
func (o *Orchestrator) teardown(reason string) *activeRound {
	o.mu.Lock()
	r := o.current
	if r != nil {
		r.killed = true
		r.timer.Stop()
	}
	o.mu.Unlock()

	if r != nil {
		o.logger.Info("round_killed", "round_id", r.ID.String(), "reason", reason)
	}

	o.server.Stop()
	if o.bots != nil {
		o.bots.KillBots()
	}
	return r
}

// Close kills any running round and stops the loop. Later launches fail with ErrClosed.
func (o *Orchestrator) Close() error {
	o.runMu.Lock()
	cancel := o.cancel
	o.runMu.Unlock()

	if cancel == nil {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()
		o.teardown("close")
		o.drainIfIdle()
		return nil
	}

	cancel()
	<-o.loopDone
	return nil
}

// IsRunning reports whether a round is in progress. A round stays in progress
// until its exit has been resolved.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// CurrentRound returns the round in progress.
func (o *Orchestrator) CurrentRound() (Round, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Round{}, false
	}
	return o.current.Round, true
}

// LastResult returns the result of the most recently resolved round.
func (o *Orchestrator) LastResult() (MatchResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return MatchResult{}, false
	}
	return *o.last, true
}

// Rounds returns how many rounds have been launched.
func (o *Orchestrator) Rounds() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rounds
}

// ServerPID returns the pid of the running server, or 0.
func (o *Orchestrator) ServerPID() int {
	return o.server.PID()
}
