package roster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/randomizedcoder/go-borg-arena/internal/supervisor"
)

// =============================================================================
// Test Helpers
// =============================================================================

// writeBot writes an executable /bin/sh bot into dir.
func writeBot(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write bot: %v", err)
	}
	return path
}

// =============================================================================
// Roster Model Tests
// =============================================================================

func TestRoster_Add(t *testing.T) {
	dir := t.TempDir()
	alice := writeBot(t, dir, "alice", "exit 0")
	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New()
	b, err := r.Add(alice)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if b.Name != "alice" || !b.Enabled || b.Path != alice {
		t.Errorf("Add() = %+v", b)
	}

	if _, err := r.Add(alice); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate Add() error = %v, want ErrDuplicateName", err)
	}
	if _, err := r.Add(plain); !errors.Is(err, supervisor.ErrNotExecutable) {
		t.Errorf("Add(non-executable) error = %v, want ErrNotExecutable", err)
	}
	if _, err := r.Add(filepath.Join(dir, "ghost")); !errors.Is(err, supervisor.ErrNotFound) {
		t.Errorf("Add(missing) error = %v, want ErrNotFound", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRoster_AddFromDir(t *testing.T) {
	dir := t.TempDir()
	writeBot(t, dir, "alice", "exit 0")
	writeBot(t, dir, "bob", "exit 0")
	if err := os.WriteFile(filepath.Join(dir, "names.txt"), []byte("Ada\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := New()
	added, err := r.AddFromDir(dir)
	if err != nil {
		t.Fatalf("AddFromDir() error: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added %d bots, want 2", len(added))
	}

	// Importing again adds nothing
	again, err := r.AddFromDir(dir)
	if err != nil {
		t.Fatalf("second AddFromDir() error: %v", err)
	}
	if len(again) != 0 || r.Len() != 2 {
		t.Errorf("second import added %d, Len() = %d", len(again), r.Len())
	}

	if _, err := r.AddFromDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("AddFromDir on a missing directory should fail")
	}
}

func TestRoster_RemoveAndEnable(t *testing.T) {
	r := New(
		Bot{Name: "alice", Enabled: true},
		Bot{Name: "bob", Enabled: true},
		Bot{Name: "carol", Enabled: false},
	)

	if r.EnabledCount() != 2 {
		t.Errorf("EnabledCount() = %d, want 2", r.EnabledCount())
	}
	if err := r.SetEnabled(2, true); err != nil {
		t.Fatalf("SetEnabled() error: %v", err)
	}
	if r.EnabledCount() != 3 {
		t.Errorf("EnabledCount() = %d, want 3", r.EnabledCount())
	}

	removed, err := r.Remove(0)
	if err != nil || removed.Name != "alice" {
		t.Fatalf("Remove(0) = %+v, %v", removed, err)
	}
	if got := r.Bots(); len(got) != 2 || got[0].Name != "bob" {
		t.Errorf("Bots() = %+v", got)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"remove negative", func() error { _, err := r.Remove(-1); return err }},
		{"remove past end", func() error { _, err := r.Remove(5); return err }},
		{"enable past end", func() error { return r.SetEnabled(5, true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrNoSuchBot) {
				t.Errorf("error = %v, want ErrNoSuchBot", err)
			}
		})
	}

	r.RemoveAll()
	if r.Len() != 0 || r.EnabledCount() != 0 {
		t.Error("RemoveAll() should empty the roster")
	}
}

func TestRoster_WinsAndStandings(t *testing.T) {
	r := New(
		Bot{Name: "carol", Enabled: true},
		Bot{Name: "alice", Enabled: true},
		Bot{Name: "bob", Enabled: false},
	)

	if !r.RecordWin("bob") || !r.RecordWin("bob") || !r.RecordWin("alice") {
		t.Fatal("RecordWin() should accept roster names")
	}
	if r.RecordWin("Bob") {
		t.Error("winner matching is exact")
	}
	if r.RecordWin("mallory") {
		t.Error("RecordWin() should reject unknown names")
	}

	got := r.Standings()
	want := []string{"bob", "alice", "carol"}
	for i, s := range got {
		if s.Name != want[i] {
			t.Fatalf("Standings() = %+v, want order %v", got, want)
		}
	}
	if got[0].Wins != 2 || got[0].Enabled {
		t.Errorf("bob standing = %+v", got[0])
	}

	r.Reset()
	for _, s := range r.Standings() {
		if s.Wins != 0 {
			t.Errorf("%s wins = %d after Reset", s.Name, s.Wins)
		}
	}
}

func TestRoster_BotsIsCopy(t *testing.T) {
	r := New(Bot{Name: "alice", Enabled: true})
	bots := r.Bots()
	bots[0].Name = "changed"
	if r.Bots()[0].Name != "alice" {
		t.Error("Bots() must return a copy")
	}
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestLoad_Missing(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "bots.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.yaml")

	r := New(
		Bot{Name: "alice", Path: "/bots/alice", Enabled: true, Wins: 3},
		Bot{Name: "bob", Path: "/bots/bob", Enabled: false, Args: []string{"--fast"}},
	)
	if err := r.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := loaded.Bots()
	if len(got) != 2 {
		t.Fatalf("loaded %d bots", len(got))
	}
	if got[0].Wins != 3 || !got[0].Enabled {
		t.Errorf("alice = %+v", got[0])
	}
	if got[1].Enabled || len(got[1].Args) != 1 || got[1].Args[0] != "--fast" {
		t.Errorf("bob = %+v", got[1])
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "bots: [unclosed"},
		{"duplicate names", "bots:\n  - name: a\n    path: /x/a\n  - name: a\n    path: /y/a\n"},
		{"duplicate derived names", "bots:\n  - path: /x/a\n  - path: /y/a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bots.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_NameFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.yaml")
	if err := os.WriteFile(path, []byte("bots:\n  - path: /bots/zed\n    enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := r.Bots(); got[0].Name != "zed" {
		t.Errorf("Name = %q, want zed", got[0].Name)
	}
}
