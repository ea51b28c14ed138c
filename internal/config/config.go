// Package config provides configuration management for go-borg-arena.
package config

import "time"

// Config holds all configuration options for the arena.
type Config struct {
	// Tournament
	ServerPath string   `json:"server_path"`
	MapPath    string   `json:"map_path"`
	Rounds     int      `json:"rounds"`
	BotArgs    []string `json:"bot_args"`

	// Roster
	RosterPath       string        `json:"roster_path"`
	BotDir           string        `json:"bot_dir"` // positional; replaces the roster
	BotLaunchDelay   time.Duration `json:"bot_launch_delay"`
	BotStagger       time.Duration `json:"bot_stagger"`
	BotStaggerJitter time.Duration `json:"bot_stagger_jitter"`
	Reset            bool          `json:"reset"`

	// Process
	GraceInterval time.Duration `json:"grace_interval"`

	// Output / Observability
	LogFile     string `json:"log_file"` // "" = memory only
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	Verbose     bool   `json:"verbose"`
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	HistoryPath string `json:"history_path"` // "" = disabled

	// Modes
	TUIEnabled    bool   `json:"tui_enabled"`
	Matches       int    `json:"matches"` // headless only
	SettingsPath  string `json:"settings_path"`
	PrintCmd      bool   `json:"print_cmd"`
	SkipPreflight bool   `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Tournament
		MapPath: "map1.map",
		Rounds:  4,

		// Roster
		RosterPath:     "bots.yaml",
		BotLaunchDelay: 1 * time.Second,

		// Process
		GraceInterval: 200 * time.Millisecond,

		// Observability
		LogFile:     "BORG.log",
		LogFormat:   "json",
		LogLevel:    "info",
		HistoryPath: "borg-history.db",

		// Modes
		TUIEnabled:   true,
		Matches:      1,
		SettingsPath: "borg-settings.yaml",
	}
}

// Settings returns the persisted subset of the config.
func (c *Config) Settings() Settings {
	return Settings{
		ServerPath: c.ServerPath,
		Rounds:     c.Rounds,
		MapPath:    c.MapPath,
	}
}
