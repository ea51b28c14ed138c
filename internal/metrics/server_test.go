package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func TestServer_EndpointsBoundAddr(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{}, reg)
	c.RoundStarted()

	s := NewServerWithGatherer("127.0.0.1:0", slog.New(slog.DiscardHandler), reg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()

	if strings.HasSuffix(s.Addr(), ":0") {
		t.Fatalf("Addr() = %q, want bound port", s.Addr())
	}

	tests := []struct {
		path       string
		wantSubstr string
	}{
		{"/health", "ok"},
		{"/readyz", "ok"},
		{"/metrics", "arena_rounds_started_total 1"},
	}

	client := &http.Client{Timeout: 2 * time.Second}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get("http://" + s.Addr() + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.wantSubstr) {
				t.Errorf("body does not contain %q:\n%s", tt.wantSubstr, body)
			}
		})
	}
}

// TestServer_MetricsDecode reads the exposition back the way a scraper would.
func TestServer_MetricsDecode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", ServerPath: "/opt/borg/server", Rounds: 4}, reg)
	c.RoundStarted()
	c.RoundFinished(OutcomeWinner, "alpha", 0, 1500*time.Millisecond)

	s := NewServerWithGatherer("127.0.0.1:0", slog.New(slog.DiscardHandler), reg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("decode error: %v", err)
		}
		families[mf.GetName()] = &mf
	}

	finished, ok := families["arena_rounds_finished_total"]
	if !ok {
		t.Fatal("arena_rounds_finished_total missing")
	}
	var winners float64
	for _, m := range finished.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "outcome" && lp.GetValue() == OutcomeWinner {
				winners = m.GetCounter().GetValue()
			}
		}
	}
	if winners != 1 {
		t.Errorf("winner rounds = %v, want 1", winners)
	}

	hist, ok := families["arena_round_duration_seconds"]
	if !ok || len(hist.GetMetric()) != 1 {
		t.Fatal("arena_round_duration_seconds missing")
	}
	if got := hist.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("duration sample count = %d, want 1", got)
	}
}

func TestServer_StartBindErrorDiscard(t *testing.T) {
	s := NewServerWithGatherer("256.0.0.1:bad", slog.New(slog.DiscardHandler), prometheus.NewRegistry())
	if err := s.Start(); err == nil {
		t.Error("Start() should fail on an invalid address")
	}
}
