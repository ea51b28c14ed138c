package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-borg-arena/internal/config"
	"github.com/randomizedcoder/go-borg-arena/internal/roster"
)

// =============================================================================
// Test Helpers
// =============================================================================

// arenaFixture lays out a server directory, a bot directory and a config
// whose files all live in a temp dir.
type arenaFixture struct {
	root      string
	serverDir string
	botDir    string
	cfg       *config.Config
	out       *bytes.Buffer
}

func newArenaFixture(t *testing.T, serverBody string) *arenaFixture {
	t.Helper()
	root := t.TempDir()
	f := &arenaFixture{
		root:      root,
		serverDir: filepath.Join(root, "server"),
		botDir:    filepath.Join(root, "bots"),
		out:       &bytes.Buffer{},
	}
	os.MkdirAll(f.serverDir, 0o755)
	os.MkdirAll(f.botDir, 0o755)

	writeScript(t, f.serverDir, "server", serverBody)
	writeScript(t, f.botDir, "alpha", "sleep 30\n")
	writeScript(t, f.botDir, "beta", "sleep 30\n")

	cfg := config.DefaultConfig()
	cfg.ServerPath = filepath.Join(f.serverDir, "server")
	cfg.MapPath = ""
	cfg.RosterPath = filepath.Join(root, "bots.yaml")
	cfg.LogFile = filepath.Join(root, "BORG.log")
	cfg.HistoryPath = filepath.Join(root, "history.db")
	cfg.SettingsPath = filepath.Join(root, "settings.yaml")
	cfg.BotLaunchDelay = 20 * time.Millisecond
	cfg.GraceInterval = 100 * time.Millisecond
	cfg.TUIEnabled = false
	cfg.SkipPreflight = true
	f.cfg = cfg
	return f
}

func (f *arenaFixture) newArena(t *testing.T, opts ArenaOptions) *Arena {
	t.Helper()
	opts.Registry = prometheus.NewRegistry()
	opts.Out = f.out
	a, err := NewArena(f.cfg, nil, opts)
	if err != nil {
		t.Fatalf("NewArena() error: %v", err)
	}
	return a
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const alphaWinsServer = "echo listening\nsleep 0.2\necho alpha > scores.log\n"

// =============================================================================
// Tests: Construction
// =============================================================================

func TestNewArena_ImportsBotDir(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.BotDir = f.botDir

	// A stale roster is replaced by the directory
	stale := roster.New(roster.Bot{Name: "old", Path: "/bin/true", Enabled: true, Wins: 7})
	if err := stale.Save(f.cfg.RosterPath); err != nil {
		t.Fatal(err)
	}

	a := f.newArena(t, ArenaOptions{})
	defer a.Shutdown(context.Background())

	bots := a.Bots()
	if len(bots) != 2 {
		t.Fatalf("Bots() = %v, want alpha and beta", bots)
	}
	if bots[0].Name != "alpha" || bots[1].Name != "beta" {
		t.Errorf("Bots() = %v", bots)
	}

	saved, err := roster.Load(f.cfg.RosterPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Len() != 2 {
		t.Errorf("saved roster has %d bots, want 2", saved.Len())
	}
}

func TestNewArena_BadRoster(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	os.WriteFile(f.cfg.RosterPath, []byte("bots: [[[\n"), 0o644)

	_, err := NewArena(f.cfg, nil, ArenaOptions{Registry: prometheus.NewRegistry()})
	if err == nil {
		t.Error("NewArena() should fail on an unparsable roster")
	}
}

func TestArena_SetRounds(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	a := f.newArena(t, ArenaOptions{})
	defer a.Shutdown(context.Background())

	if a.RoundCount() != 4 {
		t.Errorf("RoundCount() = %d, want 4", a.RoundCount())
	}
	if err := a.SetRounds(0); !errors.Is(err, ErrInvalidRounds) {
		t.Errorf("SetRounds(0) = %v, want ErrInvalidRounds", err)
	}
	if err := a.SetRounds(10); err != nil {
		t.Errorf("SetRounds(10) = %v", err)
	}
	if a.RoundCount() != 10 {
		t.Errorf("RoundCount() = %d, want 10", a.RoundCount())
	}
}

func TestArena_SetBotEnabled(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.BotDir = f.botDir
	a := f.newArena(t, ArenaOptions{})
	defer a.Shutdown(context.Background())

	if err := a.SetBotEnabled(1, false); err != nil {
		t.Fatalf("SetBotEnabled() error: %v", err)
	}
	if err := a.SetBotEnabled(5, false); !errors.Is(err, roster.ErrNoSuchBot) {
		t.Errorf("SetBotEnabled(5) = %v, want ErrNoSuchBot", err)
	}

	saved, _ := roster.Load(f.cfg.RosterPath)
	if saved.EnabledCount() != 1 {
		t.Errorf("saved EnabledCount() = %d, want 1", saved.EnabledCount())
	}
}

// =============================================================================
// Tests: Headless Run
// =============================================================================

func TestArena_RunPlaysMatches(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.BotDir = f.botDir
	f.cfg.Matches = 2

	var over []MatchResult
	a := f.newArena(t, ArenaOptions{
		Callbacks: Callbacks{
			OnRoundOver: func(res MatchResult) { over = append(over, res) },
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(over) != 2 {
		t.Fatalf("OnRoundOver called %d times, want 2", len(over))
	}
	for _, res := range over {
		if res.Winner != "alpha" || !res.Resolved {
			t.Errorf("result = %+v, want alpha", res)
		}
	}

	standings := a.Standings()
	if len(standings) == 0 || standings[0].Name != "alpha" || standings[0].Wins != 2 {
		t.Errorf("Standings() = %v, want alpha with 2 wins", standings)
	}

	summary := f.out.String()
	for _, want := range []string{"go-borg-arena Exit Summary", "Rounds Played:          2", "alpha"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	// The settings file remembers the launch
	s, err := config.LoadSettings(f.cfg.SettingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if s.ServerPath != f.cfg.ServerPath || s.Rounds != 4 {
		t.Errorf("settings = %+v", s)
	}

	// Output reached the log file
	data, _ := os.ReadFile(f.cfg.LogFile)
	if !strings.Contains(string(data), "listening") {
		t.Errorf("output log missing server output:\n%s", data)
	}
}

func TestArena_HistoryAcrossSessions(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.BotDir = f.botDir
	f.cfg.Matches = 1

	a := f.newArena(t, ArenaOptions{})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Second session keeps the roster and history
	f.cfg.BotDir = ""
	b := f.newArena(t, ArenaOptions{})
	defer b.Shutdown(context.Background())

	rounds, err := b.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("History() = %d rounds, want 1", len(rounds))
	}
	r := rounds[0]
	if r.Winner != "alpha" || r.Outcome != "winner" || r.Players != 2 || r.Rounds != 4 {
		t.Errorf("history round = %+v", r)
	}
	if got := strings.Join(r.Args, " "); got != "server 2 4" {
		t.Errorf("history args = %q, want %q", got, "server 2 4")
	}

	if standings := b.Standings(); len(standings) == 0 || standings[0].Wins != 1 {
		t.Errorf("Standings() = %v, want persisted win", standings)
	}
}

func TestArena_ResetClearsHistory(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.BotDir = f.botDir
	f.cfg.Matches = 1

	a := f.newArena(t, ArenaOptions{})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	f.cfg.BotDir = ""
	f.cfg.Reset = true
	b := f.newArena(t, ArenaOptions{})
	defer b.Shutdown(context.Background())

	rounds, _ := b.History(context.Background(), 10)
	if len(rounds) != 0 {
		t.Errorf("History() = %d rounds after reset, want 0", len(rounds))
	}
	for _, s := range b.Standings() {
		if s.Wins != 0 {
			t.Errorf("%s has %d wins after reset", s.Name, s.Wins)
		}
	}
}

func TestArena_RunLaunchFailure(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.ServerPath = filepath.Join(f.root, "missing")

	a := f.newArena(t, ArenaOptions{})
	err := a.Run(context.Background())
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("Run() = %v, want ErrExecutableNotFound", err)
	}
	if !strings.Contains(err.Error(), "Can't find the server") {
		t.Errorf("error should carry the user message: %v", err)
	}
}

func TestArena_RunCancelled(t *testing.T) {
	f := newArenaFixture(t, "echo listening\nsleep 30\n")
	f.cfg.Matches = 3

	ctx, cancel := context.WithCancel(context.Background())
	var started int
	a := f.newArena(t, ArenaOptions{
		Callbacks: Callbacks{
			OnRoundStart: func(Round) {
				started++
				time.AfterFunc(100*time.Millisecond, cancel)
			},
		},
	})

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if started != 1 {
		t.Errorf("rounds started = %d, want 1", started)
	}
	if a.IsRunning() {
		t.Error("no round should be running after Run returns")
	}
}

func TestArena_PreflightFails(t *testing.T) {
	f := newArenaFixture(t, alphaWinsServer)
	f.cfg.SkipPreflight = false
	f.cfg.ServerPath = filepath.Join(f.root, "missing")

	a := f.newArena(t, ArenaOptions{})
	defer a.Shutdown(context.Background())

	if err := a.Preflight(); err == nil {
		t.Error("Preflight() should fail without a server")
	}
	if !strings.Contains(f.out.String(), "Preflight checks:") {
		t.Errorf("preflight results not printed:\n%s", f.out.String())
	}
}

// =============================================================================
// Tests: Summary Helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{61 * time.Minute, "01:01:00"},
		{25*time.Hour + 2*time.Second, "25:00:02"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := map[int]string{
		0:   "(clean)",
		1:   "(error)",
		137: "(SIGKILL)",
		143: "(SIGTERM)",
		2:   "",
	}
	for code, want := range tests {
		if got := exitCodeLabel(code); got != want {
			t.Errorf("exitCodeLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
