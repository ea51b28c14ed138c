package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// argList is a custom flag type for repeatable -bot-arg flags.
type argList []string

func (a *argList) String() string {
	return strings.Join(*a, ", ")
}

func (a *argList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. Persisted settings are loaded from
// the -settings file and fill every field the command line left unset.
// Usage text goes to output.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	var botArgs argList

	fs := flag.NewFlagSet("go-borg-arena", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `go-borg-arena - match orchestration for bot tournaments

Usage:
  go-borg-arena [flags] [BOT_DIR]

  BOT_DIR replaces the roster with every executable in the directory
  and resets the tournament.

Tournament:
`)
		printFlagCategory(fs, output, []string{"server", "map", "rounds", "bot-arg"})

		fmt.Fprintf(output, "\nRoster:\n")
		printFlagCategory(fs, output, []string{"roster", "bot-launch-delay", "bot-stagger", "bot-stagger-jitter", "reset"})

		fmt.Fprintf(output, "\nProcess:\n")
		printFlagCategory(fs, output, []string{"grace"})

		fmt.Fprintf(output, "\nOutput / Observability:\n")
		printFlagCategory(fs, output, []string{"log-file", "log-format", "log-level", "v", "metrics", "history"})

		fmt.Fprintf(output, "\nModes:\n")
		printFlagCategory(fs, output, []string{"tui", "matches", "settings", "print-cmd", "skip-preflight"})

		fmt.Fprintf(output, `
Examples:
  # Dashboard, server remembered from the last run
  go-borg-arena

  # Import a directory of bots and run three rounds headless
  go-borg-arena -server ./server -tui=false -matches 3 ./bots

  # Show the server command line without running anything
  go-borg-arena -server ./server -rounds 6 --print-cmd
`)
	}

	// Tournament
	fs.StringVar(&cfg.ServerPath, "server", cfg.ServerPath, "Path to the game server executable")
	fs.StringVar(&cfg.MapPath, "map", cfg.MapPath, "Map file passed to the server when it exists")
	fs.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "Rounds per server launch (1-10)")
	fs.Var(&botArgs, "bot-arg", "Extra argument appended to every bot command (repeatable)")

	// Roster
	fs.StringVar(&cfg.RosterPath, "roster", cfg.RosterPath, "Roster file (YAML)")
	fs.DurationVar(&cfg.BotLaunchDelay, "bot-launch-delay", cfg.BotLaunchDelay, "Delay between server start and bot launch")
	fs.DurationVar(&cfg.BotStagger, "bot-stagger", cfg.BotStagger, "Interval between successive bot launches")
	fs.DurationVar(&cfg.BotStaggerJitter, "bot-stagger-jitter", cfg.BotStaggerJitter, "Maximum random jitter added to each stagger")
	fs.BoolVar(&cfg.Reset, "reset", cfg.Reset, "Reset win tallies and round history before starting")

	// Process
	fs.DurationVar(&cfg.GraceInterval, "grace", cfg.GraceInterval, "Time between terminate and force kill")

	// Observability
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Append server and bot output to this file (empty = off)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json, text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (every output line)")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = off)")
	fs.StringVar(&cfg.HistoryPath, "history", cfg.HistoryPath, "Round history database (empty = off)")

	// Modes
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Interactive dashboard")
	fs.IntVar(&cfg.Matches, "matches", cfg.Matches, "Server launches to run in headless mode")
	fs.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "Remembered settings file (empty = off)")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the server command and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip startup checks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.BotDir = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one bot directory, got %d arguments", fs.NArg())
	}
	cfg.BotArgs = botArgs

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	settings.apply(cfg, explicit)

	return cfg, nil
}

// printFlagCategory prints the named flags in the order they were defined.
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, ok := f.Value.(*argList); ok {
		return "value"
	}

	// Duration values always end in a unit
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
