package config

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Test Helpers
// =============================================================================

// parse runs ParseArgs with no settings file unless args name one.
func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg, err := ParseArgs(append([]string{"-settings", ""}, args...), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs(%v) error: %v", args, err)
	}
	return cfg
}

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.ServerPath = "/opt/borg/server"
	return cfg
}

// =============================================================================
// Tests: Flag Types
// =============================================================================

func TestArgList(t *testing.T) {
	var a argList
	if a.String() != "" {
		t.Errorf("empty String() = %q", a.String())
	}

	a.Set("--fast")
	a.Set("--seed=4")
	if len(a) != 2 || a[1] != "--seed=4" {
		t.Errorf("after Set: %v", a)
	}
	if a.String() != "--fast, --seed=4" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestFlagType(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("b", false, "")
	fs.Duration("d", time.Second, "")
	fs.Int("i", 4, "")
	fs.String("s", "map1.map", "")
	var a argList
	fs.Var(&a, "a", "")

	tests := map[string]string{
		"b": "",
		"d": "duration",
		"i": "int",
		"s": "string",
		"a": "value",
	}
	for name, want := range tests {
		if got := flagType(fs.Lookup(name)); got != want {
			t.Errorf("flagType(%s) = %q, want %q", name, got, want)
		}
	}
}

// =============================================================================
// Tests: Defaults and Parsing
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MapPath != "map1.map" {
		t.Errorf("MapPath = %q, want map1.map", cfg.MapPath)
	}
	if cfg.Rounds != 4 {
		t.Errorf("Rounds = %d, want 4", cfg.Rounds)
	}
	if cfg.BotLaunchDelay != time.Second {
		t.Errorf("BotLaunchDelay = %v, want 1s", cfg.BotLaunchDelay)
	}
	if cfg.GraceInterval != 200*time.Millisecond {
		t.Errorf("GraceInterval = %v, want 200ms", cfg.GraceInterval)
	}
	if cfg.LogFile != "BORG.log" {
		t.Errorf("LogFile = %q, want BORG.log", cfg.LogFile)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if !cfg.TUIEnabled {
		t.Error("TUIEnabled should default to true")
	}
	if cfg.ServerPath != "" {
		t.Errorf("ServerPath = %q, want empty", cfg.ServerPath)
	}
}

func TestParseArgs(t *testing.T) {
	cfg := parse(t,
		"-server", "/srv/server",
		"-rounds", "7",
		"-map", "arena.map",
		"-bot-arg", "--fast",
		"-bot-arg", "--quiet",
		"-grace", "1s",
		"-tui=false",
		"-matches", "3",
		"./bots",
	)

	if cfg.ServerPath != "/srv/server" {
		t.Errorf("ServerPath = %q", cfg.ServerPath)
	}
	if cfg.Rounds != 7 {
		t.Errorf("Rounds = %d, want 7", cfg.Rounds)
	}
	if cfg.MapPath != "arena.map" {
		t.Errorf("MapPath = %q", cfg.MapPath)
	}
	if len(cfg.BotArgs) != 2 || cfg.BotArgs[0] != "--fast" {
		t.Errorf("BotArgs = %v", cfg.BotArgs)
	}
	if cfg.GraceInterval != time.Second {
		t.Errorf("GraceInterval = %v", cfg.GraceInterval)
	}
	if cfg.TUIEnabled || cfg.Matches != 3 {
		t.Errorf("TUIEnabled=%v Matches=%d", cfg.TUIEnabled, cfg.Matches)
	}
	if cfg.BotDir != "./bots" {
		t.Errorf("BotDir = %q, want ./bots", cfg.BotDir)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"bad int", []string{"-rounds", "many"}},
		{"two positionals", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(append([]string{"-settings", ""}, tt.args...), &bytes.Buffer{})
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseArgs_Usage(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want flag.ErrHelp", err)
	}

	usage := out.String()
	for _, want := range []string{"Tournament:", "Roster:", "Modes:", "-rounds int", "(default 4)", "BOT_DIR"} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// =============================================================================
// Tests: Settings
// =============================================================================

func TestSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	want := Settings{ServerPath: "/srv/server", Rounds: 6, MapPath: "big.map"}

	if err := SaveSettings(path, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	data, _ := os.ReadFile(path)
	for _, key := range []string{"serverpath:", "rounds:", "mappath:"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("settings file missing key %q:\n%s", key, data)
		}
	}

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != want {
		t.Errorf("LoadSettings = %+v, want %+v", got, want)
	}
}

func TestLoadSettings_Missing(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if s != (Settings{}) {
		t.Errorf("got %+v, want empty", s)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("rounds: [not, a, number]\n"), 0o644)

	if _, err := LoadSettings(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseArgs_SettingsFillUnsetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := SaveSettings(path, Settings{ServerPath: "/remembered/server", Rounds: 9, MapPath: "old.map"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"-settings", path, "-rounds", "2"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	if cfg.ServerPath != "/remembered/server" {
		t.Errorf("ServerPath = %q, want remembered value", cfg.ServerPath)
	}
	if cfg.Rounds != 2 {
		t.Errorf("Rounds = %d, explicit flag must win", cfg.Rounds)
	}
	if cfg.MapPath != "old.map" {
		t.Errorf("MapPath = %q, want remembered value", cfg.MapPath)
	}
	if cfg.Settings() != (Settings{ServerPath: "/remembered/server", Rounds: 2, MapPath: "old.map"}) {
		t.Errorf("Settings() = %+v", cfg.Settings())
	}
}

// =============================================================================
// Tests: Validate
// =============================================================================

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing server", func(c *Config) { c.ServerPath = "" }, "server"},
		{"zero rounds", func(c *Config) { c.Rounds = 0 }, "rounds"},
		{"eleven rounds", func(c *Config) { c.Rounds = 11 }, "rounds"},
		{"no roster", func(c *Config) { c.RosterPath = "" }, "roster"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"zero grace", func(c *Config) { c.GraceInterval = 0 }, "grace"},
		{"negative delay", func(c *Config) { c.BotLaunchDelay = -time.Second }, "bot_launch_delay"},
		{"negative jitter", func(c *Config) { c.BotStaggerJitter = -time.Millisecond }, "bot_stagger_jitter"},
		{"headless zero matches", func(c *Config) { c.TUIEnabled = false; c.Matches = 0 }, "matches"},
		{"metrics addr", func(c *Config) { c.MetricsAddr = "nocolon" }, "metrics_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidate_RoundBounds(t *testing.T) {
	for _, rounds := range []int{1, 10} {
		cfg := validConfig()
		cfg.Rounds = rounds
		if err := Validate(cfg); err != nil {
			t.Errorf("rounds=%d: %v", rounds, err)
		}
	}
}

func TestValidate_TUIIgnoresMatches(t *testing.T) {
	cfg := validConfig()
	cfg.Matches = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() = %v, matches is headless only", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.ServerPath = ""
	cfg.Rounds = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server:", "rounds:", "log_format:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "rounds", Message: "must be between 1 and 10"}
	if err.Error() != "rounds: must be between 1 and 10" {
		t.Errorf("Error() = %q", err.Error())
	}
}
