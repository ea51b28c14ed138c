package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-borg-arena/internal/config"
	"github.com/randomizedcoder/go-borg-arena/internal/logging"
	"github.com/randomizedcoder/go-borg-arena/internal/metrics"
	"github.com/randomizedcoder/go-borg-arena/internal/preflight"
	"github.com/randomizedcoder/go-borg-arena/internal/roster"
	"github.com/randomizedcoder/go-borg-arena/internal/store"
	"github.com/randomizedcoder/go-borg-arena/internal/stream"
)

// shutdownTimeout bounds Shutdown when the caller gives no deadline.
const shutdownTimeout = 10 * time.Second

// ArenaOptions are the collaborators supplied by the front end.
type ArenaOptions struct {
	Version string

	// Sink receives all output in addition to the output log.
	Sink   stream.Sink
	Warner Warner

	// Registry holds the metrics. Nil means the default registry.
	Registry *prometheus.Registry

	// Out receives preflight results and the exit summary. Nil means stdout.
	Out io.Writer

	// Callbacks run after the arena has recorded the round.
	Callbacks Callbacks
}

// Arena wires a tournament session together: roster, bots, output log,
// history, metrics and the orchestrator.
type Arena struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	opts   ArenaOptions

	outputLog     *logging.OutputLog
	manager       *roster.Manager
	history       *store.Store
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	orch          *Orchestrator

	mu       sync.Mutex
	rounds   int
	pending  map[uuid.UUID]Round
	settings config.Settings

	results  chan MatchResult
	loopDone chan struct{}
	started  bool
}

// NewArena opens the session's files and builds every component. Nothing
// is started until Start or Run.
func NewArena(cfg *config.Config, logger *slog.Logger, opts ArenaOptions) (*Arena, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	a := &Arena{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		opts:     opts,
		rounds:   cfg.Rounds,
		pending:  make(map[uuid.UUID]Round),
		results:  make(chan MatchResult, 1),
		loopDone: make(chan struct{}),
	}
	a.settings, _ = config.LoadSettings(cfg.SettingsPath)

	outputLog, err := logging.OpenOutputLog(cfg.LogFile, logger, cfg.Verbose)
	if err != nil {
		return nil, err
	}
	a.outputLog = outputLog

	r, err := a.loadRoster()
	if err != nil {
		a.outputLog.Close()
		return nil, err
	}

	if cfg.HistoryPath != "" {
		h, err := store.Open(cfg.HistoryPath)
		if err != nil {
			a.outputLog.Close()
			return nil, err
		}
		a.history = h
		if cfg.Reset || cfg.BotDir != "" {
			if err := h.Reset(context.Background()); err != nil {
				a.closeFiles()
				return nil, err
			}
			logger.Info("history_reset", "path", cfg.HistoryPath)
		}
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}
	a.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:    opts.Version,
		ServerPath: cfg.ServerPath,
		Rounds:     cfg.Rounds,
	}, registerer)
	a.metrics.SetEnabledBots(r.EnabledCount())
	if cfg.MetricsAddr != "" {
		a.metricsServer = metrics.NewServerWithGatherer(cfg.MetricsAddr, logger, gatherer)
	}

	sink := stream.Tee{a.outputLog, opts.Sink}

	a.manager = roster.NewManager(roster.ManagerConfig{
		Roster:        r,
		RosterPath:    cfg.RosterPath,
		Logger:        logger,
		Sink:          sink,
		Metrics:       a.metrics,
		Stagger:       roster.NewStagger(cfg.BotStagger, cfg.BotStaggerJitter),
		GraceInterval: cfg.GraceInterval,
		ExtraArgs:     cfg.BotArgs,
	})

	a.orch = New(Config{
		Logger:         logger,
		Bots:           a.manager,
		Sink:           sink,
		Warner:         opts.Warner,
		Metrics:        a.metrics,
		BotLaunchDelay: cfg.BotLaunchDelay,
		GraceInterval:  cfg.GraceInterval,
		Callbacks: Callbacks{
			OnRoundStart: a.onRoundStart,
			OnRoundOver:  a.onRoundOver,
		},
	})

	return a, nil
}

// loadRoster reads the roster file. A bot directory replaces the roster and
// starts a new tournament; -reset only clears the tallies.
func (a *Arena) loadRoster() (*roster.Roster, error) {
	r, err := roster.Load(a.cfg.RosterPath)
	if err != nil {
		return nil, err
	}

	changed := false
	if a.cfg.BotDir != "" {
		r.RemoveAll()
		added, err := r.AddFromDir(a.cfg.BotDir)
		if err != nil {
			return nil, err
		}
		a.logger.Info("bots_imported", "dir", a.cfg.BotDir, "bots", len(added))
		changed = true
	}
	if a.cfg.Reset || a.cfg.BotDir != "" {
		r.Reset()
		changed = true
	}

	if changed {
		if err := r.Save(a.cfg.RosterPath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Preflight runs the startup checks unless they are disabled.
func (a *Arena) Preflight() error {
	if a.cfg.SkipPreflight {
		return nil
	}
	result := preflight.RunAll(a.cfg, a.manager.Roster().Bots())
	preflight.FprintResults(a.out, result)
	if !result.Passed {
		return fmt.Errorf("preflight checks failed (use --skip-preflight to override)")
	}
	return nil
}

// Start starts the metrics server and the orchestrator loop.
func (a *Arena) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("arena already started")
	}
	a.started = true
	a.mu.Unlock()

	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	go func() {
		defer close(a.loopDone)
		if err := a.orch.Run(ctx); err != nil {
			a.logger.Error("orchestrator_failed", "error", err)
		}
	}()
	return nil
}

// Run plays the configured number of rounds back to back without a
// dashboard. It blocks until they are done or a signal arrives.
func (a *Arena) Run(ctx context.Context) error {
	if err := a.Preflight(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	runErr := a.playMatches(ctx, sigCh)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("shutdown_incomplete", "error", err)
	}

	a.PrintExitSummary()
	return runErr
}

// playMatches launches rounds until cfg.Matches have been played.
// Unresolved rounds count as played.
func (a *Arena) playMatches(ctx context.Context, sigCh <-chan os.Signal) error {
	for played := 0; played < a.cfg.Matches; played++ {
		round, err := a.LaunchRound()
		if err != nil {
			title, msg := UserMessage(err)
			a.logger.Error("launch_failed", "title", title, "error", err)
			return fmt.Errorf("%s: %w", msg, err)
		}
		a.logger.Info("match_started", "match", played+1, "of", a.cfg.Matches, "round_id", round.ID.String())

		res, ok := a.waitResult(ctx, round.ID, sigCh)
		if !ok {
			return nil
		}
		a.logger.Info("match_finished",
			"match", played+1,
			"winner", res.Winner,
			"outcome", res.Outcome(),
			"exit_code", res.ExitCode,
		)
	}
	return nil
}

// waitResult blocks until round id resolves. It kills the round and returns
// false on a signal or cancellation.
func (a *Arena) waitResult(ctx context.Context, id uuid.UUID, sigCh <-chan os.Signal) (MatchResult, bool) {
	for {
		select {
		case res := <-a.results:
			if res.RoundID == id {
				return res, true
			}
		case sig := <-sigCh:
			a.logger.Info("received_signal", "signal", sig.String())
			a.Kill()
			return MatchResult{}, false
		case <-ctx.Done():
			a.logger.Info("context_cancelled")
			a.Kill()
			return MatchResult{}, false
		}
	}
}

// LaunchRound starts a round with the session's parameters and remembers
// them in the settings file.
func (a *Arena) LaunchRound() (Round, error) {
	a.mu.Lock()
	params := TournamentParameters{
		ServerPath: a.cfg.ServerPath,
		MapPath:    a.cfg.MapPath,
		Rounds:     a.rounds,
	}
	a.mu.Unlock()

	round, err := a.orch.LaunchRound(params)
	if err != nil {
		return Round{}, err
	}
	a.saveSettings(params)
	return round, nil
}

// saveSettings writes the launch parameters when they differ from the
// remembered ones.
func (a *Arena) saveSettings(p TournamentParameters) {
	s := config.Settings{ServerPath: p.ServerPath, Rounds: p.Rounds, MapPath: a.cfg.MapPath}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s == a.settings {
		return
	}
	if err := config.SaveSettings(a.cfg.SettingsPath, s); err != nil {
		a.logger.Warn("settings_save_failed", "path", a.cfg.SettingsPath, "error", err)
		return
	}
	a.settings = s
}

// Kill stops the current round and waits for it to be resolved.
func (a *Arena) Kill() {
	a.orch.Kill()
}

// SetRounds changes the round count used by later launches.
func (a *Arena) SetRounds(n int) error {
	if n < MinRounds || n > MaxRounds {
		return fmt.Errorf("%w: %d", ErrInvalidRounds, n)
	}
	a.mu.Lock()
	a.rounds = n
	a.mu.Unlock()
	return nil
}

// RoundCount returns the round count used by the next launch.
func (a *Arena) RoundCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rounds
}

// SetBotEnabled enables or disables the bot at index and saves the roster.
func (a *Arena) SetBotEnabled(index int, enabled bool) error {
	r := a.manager.Roster()
	if err := r.SetEnabled(index, enabled); err != nil {
		return err
	}
	a.metrics.SetEnabledBots(r.EnabledCount())
	if err := r.Save(a.cfg.RosterPath); err != nil {
		a.logger.Warn("roster_save_failed", "path", a.cfg.RosterPath, "error", err)
	}
	return nil
}

// Bots returns the roster in order.
func (a *Arena) Bots() []roster.Bot {
	return a.manager.Roster().Bots()
}

// Standings returns the tournament table.
func (a *Arena) Standings() []roster.Standing {
	return a.manager.Standings()
}

// History returns the most recent rounds, newest first. It is empty when
// history is disabled.
func (a *Arena) History(ctx context.Context, limit int) ([]store.Round, error) {
	if a.history == nil {
		return nil, nil
	}
	return a.history.RecentRounds(ctx, limit)
}

// IsRunning reports whether a round is in progress.
func (a *Arena) IsRunning() bool {
	return a.orch.IsRunning()
}

// Orchestrator returns the orchestrator for external access.
func (a *Arena) Orchestrator() *Orchestrator {
	return a.orch
}

// Metrics returns the metrics collector for external access.
func (a *Arena) Metrics() *metrics.Collector {
	return a.metrics
}

// OutputLog returns the output log for external access.
func (a *Arena) OutputLog() *logging.OutputLog {
	return a.outputLog
}

// Callback handlers

func (a *Arena) onRoundStart(r Round) {
	a.mu.Lock()
	a.pending[r.ID] = r
	a.mu.Unlock()

	if a.opts.Callbacks.OnRoundStart != nil {
		a.opts.Callbacks.OnRoundStart(r)
	}
}

func (a *Arena) onRoundOver(res MatchResult) {
	a.mu.Lock()
	r, ok := a.pending[res.RoundID]
	delete(a.pending, res.RoundID)
	a.mu.Unlock()

	if ok && a.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.history.RecordRound(ctx, store.Round{
			ID:         res.RoundID,
			StartedAt:  r.StartedAt,
			Duration:   res.Duration,
			ServerPath: r.Params.ServerPath,
			Args:       r.Args,
			Players:    r.Params.EnabledPlayers,
			Rounds:     r.Params.Rounds,
			Winner:     res.Winner,
			Outcome:    res.Outcome(),
			ExitCode:   res.ExitCode,
			Killed:     res.Killed,
		})
		cancel()
		if err != nil {
			a.logger.Error("history_record_failed", "round_id", res.RoundID.String(), "error", err)
		}
	}

	// Never block the loop; only headless mode reads results
	select {
	case a.results <- res:
	default:
	}

	if a.opts.Callbacks.OnRoundOver != nil {
		a.opts.Callbacks.OnRoundOver(res)
	}
}

// Shutdown kills any round, stops the loop and the metrics server, and
// closes the files. It may be called without Start, but only once.
func (a *Arena) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.orch.Close(); err != nil {
		errs = append(errs, err)
	}

	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if started {
		select {
		case <-a.loopDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("orchestrator loop: %w", ctx.Err()))
		}
	}

	if a.metricsServer != nil && started {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if err := a.closeFiles(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Arena) closeFiles() error {
	var errs []error
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}
	if err := a.outputLog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("output log: %w", err))
	}
	return errors.Join(errs...)
}

// PrintExitSummary prints a summary of the session.
func (a *Arena) PrintExitSummary() {
	summary := a.metrics.GenerateSummary()
	w := a.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                      go-borg-arena Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Session Duration:       %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(w, "Rounds Played:          %d\n", summary.TotalRounds)
	fmt.Fprintf(w, "Bots Launched:          %d\n", summary.BotsLaunched)
	fmt.Fprintf(w, "Peak Enabled Bots:      %d\n", summary.PeakEnabledBots)
	fmt.Fprintln(w)

	if summary.TotalRounds > 0 {
		fmt.Fprintln(w, "Outcomes:")
		for _, outcome := range []string{metrics.OutcomeWinner, metrics.OutcomeNoWinner, metrics.OutcomeUnreadable} {
			fmt.Fprintf(w, "  %-20s %d\n", outcome, summary.Outcomes[outcome])
		}
		fmt.Fprintln(w)

		fmt.Fprintln(w, "Round Duration:")
		fmt.Fprintf(w, "  P50 (median):         %s\n", formatDuration(summary.RoundP50))
		fmt.Fprintf(w, "  P95:                  %s\n", formatDuration(summary.RoundP95))
		fmt.Fprintf(w, "  Max:                  %s\n", formatDuration(summary.RoundMax))
		fmt.Fprintln(w)
	}

	if len(summary.ExitCodes) > 0 {
		codes := make([]int, 0, len(summary.ExitCodes))
		for code := range summary.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		fmt.Fprintln(w, "Server Exit Codes:")
		for _, code := range codes {
			fmt.Fprintf(w, "  %3d %-16s %d\n", code, exitCodeLabel(code), summary.ExitCodes[code])
		}
		fmt.Fprintln(w)
	}

	if standings := a.Standings(); len(standings) > 0 {
		fmt.Fprintln(w, "Standings:")
		for i, s := range standings {
			fmt.Fprintf(w, "  %2d. %-20s %d (session %d)\n", i+1, s.Name, s.Wins, summary.Wins[s.Name])
		}
		fmt.Fprintln(w)
	}

	lines, errLines := a.outputLog.Counts()
	if path := a.outputLog.Path(); path != "" {
		fmt.Fprintf(w, "Output log:             %s (%d lines, %d errors)\n", path, lines, errLines)
	}
	if a.cfg.HistoryPath != "" {
		fmt.Fprintf(w, "History:                %s\n", a.cfg.HistoryPath)
	}
	if a.cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "Metrics endpoint was:   http://%s/metrics\n", a.cfg.MetricsAddr)
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}
