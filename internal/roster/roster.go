// Package roster holds the bots taking part in the tournament and runs them
// for each round.
//
// The roster is an ordered list of bots persisted as YAML. Manager adapts it
// to the orchestrator: it launches the enabled bots with a stagger, kills
// them when the round ends and tallies wins.
package roster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-borg-arena/internal/supervisor"
)

var (
	// ErrDuplicateName is returned when a bot with the same name exists.
	ErrDuplicateName = errors.New("bot name already in roster")

	// ErrNoSuchBot is returned for an unknown index or name.
	ErrNoSuchBot = errors.New("no such bot")
)

// Bot is one roster entry.
type Bot struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Enabled bool     `yaml:"enabled"`
	Args    []string `yaml:"args,omitempty"`
	Wins    int      `yaml:"wins"`
}

// Standing is a bot's position in the tournament table.
type Standing struct {
	Name    string
	Wins    int
	Enabled bool
}

// Roster is an ordered, concurrency-safe list of bots.
type Roster struct {
	mu   sync.RWMutex
	bots []Bot
}

// file is the on-disk layout of a roster.
type file struct {
	Bots []Bot `yaml:"bots"`
}

// New creates a roster holding bots.
func New(bots ...Bot) *Roster {
	return &Roster{bots: append([]Bot(nil), bots...)}
}

// Load reads a roster from a YAML file. A missing file yields an empty roster.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}

	r := New()
	for _, b := range f.Bots {
		if b.Name == "" {
			b.Name = filepath.Base(b.Path)
		}
		if r.indexOf(b.Name) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, b.Name)
		}
		r.bots = append(r.bots, b)
	}
	return r, nil
}

// Save writes the roster to path atomically.
func (r *Roster) Save(path string) error {
	r.mu.RLock()
	data, err := yaml.Marshal(file{Bots: r.bots})
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}

// Add appends an enabled bot for the executable at path, named after the file.
func (r *Roster) Add(path string) (Bot, error) {
	if err := supervisor.CheckExecutable(path); err != nil {
		return Bot{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Bot{}, err
	}
	b := Bot{Name: filepath.Base(abs), Path: abs, Enabled: true}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(b.Name) >= 0 {
		return Bot{}, fmt.Errorf("%w: %s", ErrDuplicateName, b.Name)
	}
	r.bots = append(r.bots, b)
	return b, nil
}

// AddFromDir adds every executable regular file in dir, skipping names
// already present. It returns the bots added.
func (r *Roster) AddFromDir(dir string) ([]Bot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bot directory: %w", err)
	}

	var added []Bot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if supervisor.CheckExecutable(path) != nil {
			continue
		}
		b, err := r.Add(path)
		if errors.Is(err, ErrDuplicateName) {
			continue
		}
		if err != nil {
			return added, err
		}
		added = append(added, b)
	}
	return added, nil
}

// Remove deletes the bot at index.
func (r *Roster) Remove(index int) (Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.bots) {
		return Bot{}, fmt.Errorf("%w: index %d", ErrNoSuchBot, index)
	}
	b := r.bots[index]
	r.bots = append(r.bots[:index], r.bots[index+1:]...)
	return b, nil
}

// RemoveAll empties the roster.
func (r *Roster) RemoveAll() {
	r.mu.Lock()
	r.bots = nil
	r.mu.Unlock()
}

// SetEnabled enables or disables the bot at index.
func (r *Roster) SetEnabled(index int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.bots) {
		return fmt.Errorf("%w: index %d", ErrNoSuchBot, index)
	}
	r.bots[index].Enabled = enabled
	return nil
}

// Reset zeroes every win tally.
func (r *Roster) Reset() {
	r.mu.Lock()
	for i := range r.bots {
		r.bots[i].Wins = 0
	}
	r.mu.Unlock()
}

// RecordWin credits a win to the named bot. It reports false for names not
// in the roster.
func (r *Roster) RecordWin(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(name)
	if i < 0 {
		return false
	}
	r.bots[i].Wins++
	return true
}

// Bots returns a copy of the roster in order.
func (r *Roster) Bots() []Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bot, len(r.bots))
	copy(out, r.bots)
	return out
}

// Enabled returns the enabled bots in roster order.
func (r *Roster) Enabled() []Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Bot
	for _, b := range r.bots {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// EnabledCount returns the number of enabled bots.
func (r *Roster) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.bots {
		if b.Enabled {
			n++
		}
	}
	return n
}

// Len returns the number of bots.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// Standings returns every bot ordered by wins, most first, then by name.
func (r *Roster) Standings() []Standing {
	r.mu.RLock()
	out := make([]Standing, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, Standing{Name: b.Name, Wins: b.Wins, Enabled: b.Enabled})
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// indexOf must be called with mu held.
func (r *Roster) indexOf(name string) int {
	for i, b := range r.bots {
		if b.Name == name {
			return i
		}
	}
	return -1
}
