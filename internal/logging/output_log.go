package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-borg-arena/internal/stream"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept in memory.
	MaxBufferedLines = 200

	// DefaultOutputLogPath is the file every output line is appended to.
	DefaultOutputLogPath = "BORG.log"
)

// OutputLog is the persistent output sink. Every line is appended to the log
// file, kept in a ring of recent lines and mirrored to slog.
//
// It is safe for concurrent use by the server and bot supervisors.
type OutputLog struct {
	logger  *slog.Logger
	verbose bool

	mu     sync.Mutex
	file   *os.File
	path   string
	buffer []string
	bufIdx int
	lines  int64
	errors int64

	writeErr error
}

// OpenOutputLog opens path for appending, creating it if needed. An empty
// path keeps output in memory only.
func OpenOutputLog(path string, logger *slog.Logger, verbose bool) (*OutputLog, error) {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	l := &OutputLog{
		logger:  logger,
		verbose: verbose,
		path:    path,
		buffer:  make([]string, MaxBufferedLines),
	}
	if path == "" {
		return l, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output log: %w", err)
	}
	l.file = f
	return l, nil
}

// NormalOutput implements stream.Sink.
func (l *OutputLog) NormalOutput(text string) {
	l.record(stream.SeverityNormal, text)
}

// ErrorOutput implements stream.Sink.
func (l *OutputLog) ErrorOutput(text string) {
	l.record(stream.SeverityError, text)
}

func (l *OutputLog) record(sev stream.Severity, line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	l.mu.Lock()
	l.buffer[l.bufIdx] = line
	l.bufIdx = (l.bufIdx + 1) % MaxBufferedLines
	l.lines++
	if sev == stream.SeverityError {
		l.errors++
	}
	if l.file != nil {
		if _, err := l.file.WriteString(line + "\n"); err != nil && l.writeErr == nil {
			// Report the first failure only; a full disk would otherwise flood the log
			l.writeErr = err
			l.logger.Error("output_log_write_failed", "path", l.path, "error", err)
		}
	}
	l.mu.Unlock()

	l.logLine(sev, line)
}

// logLine mirrors the line to slog at a level based on severity and content.
func (l *OutputLog) logLine(sev stream.Severity, line string) {
	level := classifyLine(line)
	if sev == stream.SeverityError && level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	// In non-verbose mode, only log warnings and errors
	if !l.verbose && level < slog.LevelWarn {
		return
	}

	l.logger.Log(context.Background(), level, "process_output",
		"severity", sev.String(),
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "segmentation fault") ||
		strings.Contains(lower, "panic") ||
		strings.Contains(lower, "unclean status") {
		return slog.LevelError
	}

	if strings.Contains(lower, "[warning]") ||
		strings.Contains(lower, "no winner") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "timeout") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (l *OutputLog) RecentLines(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if l.buffer[idx] != "" {
			lines = append(lines, l.buffer[idx])
		}
	}
	return lines
}

// ErrorPatterns are common failure patterns counted for the exit summary.
var ErrorPatterns = []string{
	"unclean status",
	"No winner found",
	"Unable to open server log",
	"Connection refused",
	"Segmentation fault",
	"timeout",
}

// CountErrors counts occurrences of error patterns among the recent lines.
func (l *OutputLog) CountErrors() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range l.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}

// Counts returns the total and error-severity line counts.
func (l *OutputLog) Counts() (lines, errors int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines, l.errors
}

// Path returns the file path, or "" when output is kept in memory only.
func (l *OutputLog) Path() string {
	return l.path
}

// Close closes the log file.
func (l *OutputLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var _ stream.Sink = (*OutputLog)(nil)
