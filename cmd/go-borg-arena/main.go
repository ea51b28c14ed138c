// Package main provides the go-borg-arena CLI entry point.
//
// go-borg-arena runs a bot tournament: it launches the game server, starts
// the enabled bots against it, and reads the winner the server leaves behind.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-borg-arena/internal/config"
	"github.com/randomizedcoder/go-borg-arena/internal/logging"
	"github.com/randomizedcoder/go-borg-arena/internal/orchestrator"
	"github.com/randomizedcoder/go-borg-arena/internal/roster"
	"github.com/randomizedcoder/go-borg-arena/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-borg-arena
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-borg-arena %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// The dashboard owns the terminal, so logs are discarded while it runs
	var logger *slog.Logger
	if cfg.TUIEnabled && !cfg.PrintCmd {
		logger = logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.PrintCmd {
		if err := printServerCommand(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	logger.Info("starting",
		"version", version,
		"server", cfg.ServerPath,
		"rounds", cfg.Rounds,
		"roster", cfg.RosterPath,
		"tui", cfg.TUIEnabled,
		"metrics_addr", cfg.MetricsAddr,
	)

	if cfg.TUIEnabled {
		return runDashboard(cfg, logger)
	}
	return runHeadless(cfg, logger)
}

// runHeadless plays cfg.Matches rounds and prints a summary.
func runHeadless(cfg *config.Config, logger *slog.Logger) int {
	printBanner(cfg)

	arena, err := orchestrator.NewArena(cfg, logger, orchestrator.ArenaOptions{Version: version})
	if err != nil {
		logger.Error("arena_init_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := arena.Run(context.Background()); err != nil {
		logger.Error("arena_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runDashboard runs the interactive dashboard until the user quits.
func runDashboard(cfg *config.Config, logger *slog.Logger) int {
	sink := tui.NewSink()

	arena, err := orchestrator.NewArena(cfg, logger, orchestrator.ArenaOptions{
		Version:   version,
		Sink:      sink,
		Warner:    sink,
		Callbacks: sink.Callbacks(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := arena.Preflight(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		arena.Shutdown(context.Background())
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := arena.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		arena.Shutdown(context.Background())
		return 1
	}

	model := tui.New(tui.Config{
		Controller:  arena,
		ServerPath:  cfg.ServerPath,
		MapPath:     cfg.MapPath,
		MetricsAddr: cfg.MetricsAddr,
		LogPath:     cfg.LogFile,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	sink.Attach(p)

	_, runErr := p.Run()

	// Quitting kills the round in progress
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := arena.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", "error", err)
	}

	arena.PrintExitSummary()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", runErr)
		return 1
	}
	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-borg-arena                            ║")
	fmt.Println("║          Match orchestration for bot tournaments                  ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Server:      %s\n", cfg.ServerPath)
	fmt.Printf("  Rounds:      %d per launch, %d launches\n", cfg.Rounds, cfg.Matches)
	fmt.Printf("  Roster:      %s\n", cfg.RosterPath)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printServerCommand prints the server command line the next launch would use.
func printServerCommand(cfg *config.Config) error {
	r, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return err
	}
	players := r.EnabledCount()
	if cfg.BotDir != "" {
		imported := roster.New()
		if _, err := imported.AddFromDir(cfg.BotDir); err != nil {
			return err
		}
		players = imported.EnabledCount()
	}

	// The server falls back to its default map when the file is missing
	mapPath := cfg.MapPath
	if _, err := os.Stat(mapPath); err != nil {
		mapPath = ""
	}

	params := orchestrator.TournamentParameters{
		ServerPath:     cfg.ServerPath,
		MapPath:        mapPath,
		Rounds:         cfg.Rounds,
		EnabledPlayers: players,
	}

	fmt.Println("# Server command for the next round:")
	fmt.Println()
	fmt.Printf("cd %s && %s %s\n",
		orchestrator.ServerWorkDir(cfg.ServerPath),
		cfg.ServerPath,
		strings.Join(orchestrator.BuildArguments(params), " "),
	)
	return nil
}
