// Package store keeps the round history in SQLite so cumulative scores
// survive restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Round is one finished round as recorded in the history.
type Round struct {
	ID         uuid.UUID
	StartedAt  time.Time
	Duration   time.Duration
	ServerPath string
	Args       []string
	Players    int
	Rounds     int
	Winner     string // empty for unresolved rounds
	Outcome    string
	ExitCode   int
	Killed     bool
}

// Standing is a winner's cumulative tally.
type Standing struct {
	Name      string
	Wins      int
	LastWonAt time.Time
}

// Store is the round history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			server_path TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '',
			players INTEGER NOT NULL,
			rounds INTEGER NOT NULL,
			winner TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			killed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_started ON rounds(started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_winner ON rounds(winner);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RecordRound inserts a finished round. Recording the same ID twice fails.
func (s *Store) RecordRound(ctx context.Context, r Round) error {
	if r.ID == uuid.Nil {
		return errors.New("round id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, started_at, duration_ms, server_path, args, players, rounds, winner, outcome, exit_code, killed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(),
		r.StartedAt.UnixMilli(),
		r.Duration.Milliseconds(),
		r.ServerPath,
		strings.Join(r.Args, " "),
		r.Players,
		r.Rounds,
		r.Winner,
		r.Outcome,
		r.ExitCode,
		boolToInt(r.Killed),
	)
	if err != nil {
		return fmt.Errorf("record round %s: %w", r.ID, err)
	}
	return nil
}

// RecentRounds returns up to limit rounds, newest first.
func (s *Store) RecentRounds(ctx context.Context, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, server_path, args, players, rounds, winner, outcome, exit_code, killed
		 FROM rounds ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var (
			r         Round
			idStr     string
			startedMs int64
			durMs     int64
			args      string
			killed    int
		)
		if err := rows.Scan(&idStr, &startedMs, &durMs, &r.ServerPath, &args, &r.Players,
			&r.Rounds, &r.Winner, &r.Outcome, &r.ExitCode, &killed); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("round id %q: %w", idStr, err)
		}
		r.ID = id
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durMs) * time.Millisecond
		if args != "" {
			r.Args = strings.Fields(args)
		}
		r.Killed = killed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Standings returns every winner's total wins, most first.
func (s *Store) Standings(ctx context.Context) ([]Standing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT winner, COUNT(*) AS wins, MAX(started_at)
		 FROM rounds WHERE winner != ''
		 GROUP BY winner ORDER BY wins DESC, winner ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Standing
	for rows.Next() {
		var (
			st     Standing
			lastMs int64
		)
		if err := rows.Scan(&st.Name, &st.Wins, &lastMs); err != nil {
			return nil, err
		}
		st.LastWonAt = time.UnixMilli(lastMs)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Counts returns how many rounds were recorded and how many had a winner.
func (s *Store) Counts(ctx context.Context) (total, resolved int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN winner != '' THEN 1 ELSE 0 END), 0) FROM rounds`,
	).Scan(&total, &resolved)
	return total, resolved, err
}

// Reset deletes the whole history.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rounds`)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
