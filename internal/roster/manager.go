package roster

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-borg-arena/internal/metrics"
	"github.com/randomizedcoder/go-borg-arena/internal/stream"
	"github.com/randomizedcoder/go-borg-arena/internal/supervisor"
)

// ManagerCallbacks contains optional callbacks for manager events.
type ManagerCallbacks struct {
	// OnBotStart is called when a bot process starts.
	OnBotStart func(name string, pid int)

	// OnBotExit is called when a bot process exits.
	OnBotExit func(name string, exitCode int, uptime time.Duration)

	// OnRoundOver is called after a win has been recorded. known is false
	// when the winner is not in the roster.
	OnRoundOver func(winner string, known bool)
}

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	Roster        *Roster
	RosterPath    string // saved after every recorded win when set
	Logger        *slog.Logger
	Sink          stream.Sink
	Metrics       *metrics.Collector
	Stagger       *Stagger
	GraceInterval time.Duration
	ExtraArgs     []string // appended to every bot's own Args
	Callbacks     ManagerCallbacks
}

// Manager runs the enabled bots of a roster, one supervisor per bot.
type Manager struct {
	roster     *Roster
	rosterPath string
	logger     *slog.Logger
	sink       stream.Sink
	metrics    *metrics.Collector
	stagger    *Stagger
	grace      time.Duration
	extraArgs  []string
	callbacks  ManagerCallbacks

	// Supervisors indexed by bot name
	supervisors map[string]*supervisor.Supervisor
	mu          sync.Mutex

	// Pending staggered launch; launchDone closes when its goroutine returns
	launchMu     sync.Mutex
	launchCancel context.CancelFunc
	launchDone   chan struct{}

	activeCount  atomic.Int64
	startedCount atomic.Int64
}

// NewManager creates a new Manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := cfg.Roster
	if r == nil {
		r = New()
	}
	return &Manager{
		roster:      r,
		rosterPath:  cfg.RosterPath,
		logger:      logger,
		sink:        cfg.Sink,
		metrics:     cfg.Metrics,
		stagger:     cfg.Stagger,
		grace:       cfg.GraceInterval,
		extraArgs:   cfg.ExtraArgs,
		callbacks:   cfg.Callbacks,
		supervisors: make(map[string]*supervisor.Supervisor),
	}
}

// Roster returns the managed roster.
func (m *Manager) Roster() *Roster {
	return m.roster
}

// EnabledPlayerCount returns the number of enabled bots.
func (m *Manager) EnabledPlayerCount() int {
	return m.roster.EnabledCount()
}

// LaunchBots starts every enabled bot in the background, staggered. It
// returns immediately; KillBots cancels launches that have not happened yet.
func (m *Manager) LaunchBots(ctx context.Context) {
	bots := m.roster.Enabled()
	if len(bots) == 0 {
		m.logger.Warn("no_enabled_bots")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.launchMu.Lock()
	if m.launchCancel != nil {
		m.launchCancel()
	}
	prev := m.launchDone
	m.launchCancel = cancel
	m.launchDone = done
	m.launchMu.Unlock()

	m.logger.Info("bots_launch_starting",
		"bots", len(bots),
		"estimated_duration", m.stagger.Estimated(len(bots)).String(),
	)

	go func() {
		defer close(done)
		defer cancel()

		// Never overlap with a cancelled launch that is still starting a bot
		if prev != nil {
			<-prev
		}

		launched := 0
		for i, b := range bots {
			if err := m.stagger.Wait(ctx, i); err != nil {
				m.logger.Info("bots_launch_cancelled", "started", launched, "target", len(bots))
				break
			}
			if m.startBot(b) {
				launched++
			}
		}
		if m.metrics != nil {
			m.metrics.BotsLaunched(launched)
		}
		m.logger.Info("bots_launch_complete", "started", launched, "target", len(bots))
	}()
}

// startBot spawns one bot in its own directory.
func (m *Manager) startBot(b Bot) bool {
	sup := m.supervisorFor(b.Name)

	args := append(append([]string(nil), b.Args...), m.extraArgs...)
	if err := sup.Start(b.Path, filepath.Dir(b.Path), args); err != nil {
		m.logger.Warn("bot_start_failed", "bot", b.Name, "path", b.Path, "error", err)
		stream.Deliver(m.sink, stream.Event{
			Time:     time.Now(),
			Source:   b.Name,
			Severity: stream.SeverityError,
			Text:     "failed to start: " + err.Error(),
		})
		return false
	}
	m.startedCount.Add(1)
	return true
}

func (m *Manager) supervisorFor(name string) *supervisor.Supervisor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sup, ok := m.supervisors[name]; ok {
		return sup
	}
	sup := supervisor.New(supervisor.Config{
		Name:          name,
		Logger:        m.logger,
		GraceInterval: m.grace,
		Callbacks: supervisor.Callbacks{
			OnStart:  m.handleStart,
			OnOutput: m.handleOutput,
			OnExit:   m.handleExit,
		},
	})
	m.supervisors[name] = sup
	return sup
}

// KillBots cancels any pending launches and stops every running bot.
// It blocks until they have exited and is safe to call at any time.
func (m *Manager) KillBots() {
	m.launchMu.Lock()
	if m.launchCancel != nil {
		m.launchCancel()
		m.launchCancel = nil
	}
	pending := m.launchDone
	m.launchMu.Unlock()
	if pending != nil {
		<-pending
	}

	m.mu.Lock()
	sups := make([]*supervisor.Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		sups = append(sups, sup)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, sup := range sups {
		if !sup.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(sup *supervisor.Supervisor) {
			defer wg.Done()
			sup.Stop()
		}(sup)
	}
	wg.Wait()
}

// ReportRoundOver credits the winner and persists the roster.
func (m *Manager) ReportRoundOver(winner string) {
	known := m.roster.RecordWin(winner)
	if known {
		m.logger.Info("bot_won", "bot", winner)
	} else {
		m.logger.Warn("winner_not_in_roster", "winner", winner)
	}

	if m.rosterPath != "" {
		if err := m.roster.Save(m.rosterPath); err != nil {
			m.logger.Error("roster_save_failed", "path", m.rosterPath, "error", err)
		}
	}

	if m.callbacks.OnRoundOver != nil {
		m.callbacks.OnRoundOver(winner, known)
	}
}

// Standings returns the current tournament table.
func (m *Manager) Standings() []Standing {
	return m.roster.Standings()
}

// Callback handlers

func (m *Manager) handleStart(name string, pid int) {
	m.activeCount.Add(1)
	m.logger.Debug("bot_started", "bot", name, "pid", pid)
	if m.callbacks.OnBotStart != nil {
		m.callbacks.OnBotStart(name, pid)
	}
}

func (m *Manager) handleOutput(ev stream.Event) {
	stream.Deliver(m.sink, ev)
	if m.metrics != nil {
		m.metrics.OutputLine(ev.Severity)
	}
}

func (m *Manager) handleExit(name string, exitCode int, uptime time.Duration) {
	m.activeCount.Add(-1)
	m.logger.Debug("bot_exited", "bot", name, "exit_code", exitCode, "uptime", uptime.String())
	if m.callbacks.OnBotExit != nil {
		m.callbacks.OnBotExit(name, exitCode, uptime)
	}
}

// ActiveCount returns the number of running bot processes.
func (m *Manager) ActiveCount() int {
	return int(m.activeCount.Load())
}

// StartedCount returns the number of bot processes started so far.
func (m *Manager) StartedCount() int {
	return int(m.startedCount.Load())
}

// States returns the state of every bot that has been started at least once.
func (m *Manager) States() map[string]supervisor.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]supervisor.State, len(m.supervisors))
	for name, sup := range m.supervisors {
		out[name] = sup.State()
	}
	return out
}
