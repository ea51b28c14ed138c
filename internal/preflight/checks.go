// Package preflight provides startup validation checks.
package preflight

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-borg-arena/internal/config"
	"github.com/randomizedcoder/go-borg-arena/internal/roster"
	"github.com/randomizedcoder/go-borg-arena/internal/scores"
	"github.com/randomizedcoder/go-borg-arena/internal/supervisor"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. Only the server and the limits
// can fail the run; bot, map and artifact problems are warnings.
func RunAll(cfg *config.Config, bots []roster.Bot) *Result {
	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkServer(cfg.ServerPath))
	add(checkMap(cfg.MapPath))
	add(checkBots(bots))
	add(checkFileDescriptors(len(bots)))
	add(checkProcessLimit(len(bots)))
	add(checkStaleArtifact(cfg.ServerPath))

	return result
}

// checkServer verifies the server is an executable file.
func checkServer(path string) Check {
	if err := supervisor.CheckExecutable(path); err != nil {
		return Check{
			Name:    "server",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "server",
		Passed:  true,
		Message: fmt.Sprintf("executable at %s", path),
	}
}

// checkMap reports whether the map will be passed to the server.
func checkMap(path string) Check {
	if path == "" {
		return Check{Name: "map", Passed: true, Warning: true, Message: "no map configured, server default"}
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Check{
			Name:    "map",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s not found, server default map will be used", path),
		}
	}
	return Check{Name: "map", Passed: true, Message: path}
}

// checkBots verifies every enabled bot can be started.
func checkBots(bots []roster.Bot) Check {
	enabled := 0
	var broken []string
	for _, b := range bots {
		if !b.Enabled {
			continue
		}
		enabled++
		if err := supervisor.CheckExecutable(b.Path); err != nil {
			broken = append(broken, b.Name)
		}
	}

	switch {
	case enabled == 0:
		return Check{Name: "bots", Passed: true, Warning: true, Message: "no bots enabled"}
	case len(broken) > 0:
		return Check{
			Name:    "bots",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%d of %d enabled bots not runnable: %s", len(broken), enabled, strings.Join(broken, ", ")),
		}
	default:
		return Check{Name: "bots", Passed: true, Message: fmt.Sprintf("%d enabled", enabled)}
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(bots int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{Name: "file_descriptors", Message: fmt.Sprintf("getrlimit: %v", err)}
	}

	// Two pipes per process, plus the log file, history and metrics server
	required := (bots+1)*4 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d bots)", actual, required, bots),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
// The soft limit is read from /proc/self/limits.
func checkProcessLimit(bots int) Check {
	required := bots + 1 + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses returns the soft "Max processes" limit, 0 if absent.
func parseMaxProcesses(limits string) int {
	actual := 0
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			if fields[2] == "unlimited" {
				return 1000000
			}
			fmt.Sscanf(fields[2], "%d", &actual)
		}
		break
	}
	return actual
}

// checkStaleArtifact warns about a results file left by an earlier run,
// which would be judged as the next round's result.
func checkStaleArtifact(serverPath string) Check {
	abs, err := filepath.Abs(serverPath)
	if err != nil || serverPath == "" {
		return Check{Name: "stale_results", Passed: true, Message: "not checked"}
	}
	path := scores.Path(filepath.Dir(abs))

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Check{Name: "stale_results", Passed: true, Message: "none"}
	}
	return Check{
		Name:    "stale_results",
		Passed:  true,
		Warning: true,
		Message: fmt.Sprintf("%s exists and will be read as the next result", path),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	FprintResults(os.Stdout, result)
}

// FprintResults prints the preflight check results to w.
func FprintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			if fix := suggestFix(check.Name); fix != "" {
				fmt.Fprintf(w, "    Fix: %s\n", fix)
			}
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "server":
		return "pass -server with the path to an executable server"
	case "bots":
		return "chmod +x the bot files, or disable them in the roster"
	case "stale_results":
		return "remove the file before launching"
	default:
		return ""
	}
}
