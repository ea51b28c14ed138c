package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings are the values remembered between runs: the last server
// path, round count and map.
type Settings struct {
	ServerPath string `yaml:"serverpath,omitempty"`
	Rounds     int    `yaml:"rounds,omitempty"`
	MapPath    string `yaml:"mappath,omitempty"`
}

// LoadSettings reads path. A missing file yields empty settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings writes s to path through a temporary file.
func SaveSettings(path string, s Settings) error {
	if path == "" {
		return nil
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// apply fills fields of cfg from s, skipping names in explicit (flags the
// user set on the command line) and zero values in s.
func (s Settings) apply(cfg *Config, explicit map[string]bool) {
	if s.ServerPath != "" && !explicit["server"] {
		cfg.ServerPath = s.ServerPath
	}
	if s.Rounds != 0 && !explicit["rounds"] {
		cfg.Rounds = s.Rounds
	}
	if s.MapPath != "" && !explicit["map"] {
		cfg.MapPath = s.MapPath
	}
}
