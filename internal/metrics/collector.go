// Package metrics provides Prometheus metrics for go-borg-arena.
//
// All metrics are aggregate: one server process and a small roster of bots
// never need per-process series. Round durations are also kept in a t-digest
// so the exit summary can report percentiles without retaining every sample.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-borg-arena/internal/stream"
)

// Round outcomes, used as the "outcome" label and in the summary.
const (
	OutcomeWinner     = "winner"
	OutcomeNoWinner   = "no_winner"
	OutcomeUnreadable = "unreadable"
)

// Collector manages all Prometheus metrics for the arena.
type Collector struct {
	info            *prometheus.GaugeVec
	roundsStarted   prometheus.Counter
	roundsFinished  *prometheus.CounterVec
	serverExits     *prometheus.CounterVec
	roundDuration   prometheus.Histogram
	serverRunning   prometheus.Gauge
	enabledBots     prometheus.Gauge
	outputLines     *prometheus.CounterVec
	botsLaunched    prometheus.Counter
	configuredRound prometheus.Gauge

	startTime time.Time

	// For summary generation
	mu             sync.Mutex
	totalRounds    int64
	outcomes       map[string]int64
	exitCodes      map[int]int64
	wins           map[string]int64
	durations      *tdigest.TDigest
	maxDuration    time.Duration
	totalLaunched  int64
	peakEnabledBot int
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version    string
	ServerPath string
	Rounds     int
}

// NewCollector creates a new metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_info",
			Help: "Information about the arena (value always 1)",
		}, []string{"version", "server"}),
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_rounds_started_total",
			Help: "Server launches that spawned a process",
		}),
		roundsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_rounds_finished_total",
			Help: "Rounds resolved after the server exited, by outcome",
		}, []string{"outcome"}),
		serverExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_server_exits_total",
			Help: "Server process exits by category (success, error, signal)",
		}, []string{"category"}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_round_duration_seconds",
			Help:    "Wall time from server launch to exit",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		serverRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_server_running",
			Help: "1 while a server process is running",
		}),
		enabledBots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_enabled_bots",
			Help: "Bots enabled for the next round",
		}),
		outputLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_output_lines_total",
			Help: "Output lines routed to the output sink, by severity",
		}, []string{"severity"}),
		botsLaunched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_bots_launched_total",
			Help: "Bot processes spawned",
		}),
		configuredRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_configured_rounds",
			Help: "Round count passed to the server",
		}),
		startTime: time.Now(),
		outcomes:  make(map[string]int64),
		exitCodes: make(map[int]int64),
		wins:      make(map[string]int64),
		durations: tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.info,
		c.roundsStarted,
		c.roundsFinished,
		c.serverExits,
		c.roundDuration,
		c.serverRunning,
		c.enabledBots,
		c.outputLines,
		c.botsLaunched,
		c.configuredRound,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.ServerPath).Set(1)
	c.configuredRound.Set(float64(cfg.Rounds))

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// RoundStarted records a server launch.
func (c *Collector) RoundStarted() {
	c.roundsStarted.Inc()
	c.serverRunning.Set(1)
}

// RoundFinished records the resolution of a round. winner is empty for
// unresolved rounds.
func (c *Collector) RoundFinished(outcome, winner string, exitCode int, duration time.Duration) {
	c.roundsFinished.WithLabelValues(outcome).Inc()
	c.serverExits.WithLabelValues(exitCategory(exitCode)).Inc()
	c.roundDuration.Observe(duration.Seconds())
	c.serverRunning.Set(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRounds++
	c.outcomes[outcome]++
	c.exitCodes[exitCode]++
	if winner != "" {
		c.wins[winner]++
	}
	c.durations.Add(duration.Seconds(), 1)
	if duration > c.maxDuration {
		c.maxDuration = duration
	}
}

// SetServerRunning updates the server running gauge.
func (c *Collector) SetServerRunning(running bool) {
	if running {
		c.serverRunning.Set(1)
		return
	}
	c.serverRunning.Set(0)
}

// SetEnabledBots updates the enabled bot gauge.
func (c *Collector) SetEnabledBots(n int) {
	c.enabledBots.Set(float64(n))

	c.mu.Lock()
	if n > c.peakEnabledBot {
		c.peakEnabledBot = n
	}
	c.mu.Unlock()
}

// OutputLine counts one line of routed output.
func (c *Collector) OutputLine(sev stream.Severity) {
	c.outputLines.WithLabelValues(sev.String()).Inc()
}

// BotsLaunched records n bot processes spawned for a round.
func (c *Collector) BotsLaunched(n int) {
	if n <= 0 {
		return
	}
	c.botsLaunched.Add(float64(n))

	c.mu.Lock()
	c.totalLaunched += int64(n)
	c.mu.Unlock()
}

// exitCategory buckets exit codes the same way for metrics and logs.
func exitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	TotalRounds     int64
	Outcomes        map[string]int64
	ExitCodes       map[int]int64
	Wins            map[string]int64
	BotsLaunched    int64
	PeakEnabledBots int
	RoundP50        time.Duration
	RoundP95        time.Duration
	RoundMax        time.Duration
}

// GenerateSummary creates a summary of the session.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		TotalRounds:     c.totalRounds,
		Outcomes:        make(map[string]int64, len(c.outcomes)),
		ExitCodes:       make(map[int]int64, len(c.exitCodes)),
		Wins:            make(map[string]int64, len(c.wins)),
		BotsLaunched:    c.totalLaunched,
		PeakEnabledBots: c.peakEnabledBot,
		RoundMax:        c.maxDuration,
	}
	for k, v := range c.outcomes {
		s.Outcomes[k] = v
	}
	for k, v := range c.exitCodes {
		s.ExitCodes[k] = v
	}
	for k, v := range c.wins {
		s.Wins[k] = v
	}

	if c.totalRounds > 0 {
		s.RoundP50 = secondsToDuration(c.durations.Quantile(0.50))
		s.RoundP95 = secondsToDuration(c.durations.Quantile(0.95))
	}

	return s
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
