package stream

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func collect(t *testing.T, r io.Reader, source string, sev Severity) []Event {
	t.Helper()
	var (
		mu     sync.Mutex
		events []Event
	)
	pr := NewPipeReader(r, source, sev, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	pr.Run()
	<-pr.Done()
	return events
}

func TestPipeReader_Lines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "two lines", input: "a\nb\n", want: []string{"a", "b"}},
		{name: "partial final line", input: "a\nb", want: []string{"a", "b"}},
		{name: "crlf", input: "a\r\nb\r\n", want: []string{"a", "b"}},
		{name: "empty", input: "", want: nil},
		{name: "blank line kept", input: "a\n\nb\n", want: []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := collect(t, strings.NewReader(tt.input), SourceServer, SeverityNormal)
			if len(events) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.want))
			}
			for i, ev := range events {
				if ev.Text != tt.want[i] {
					t.Errorf("event %d = %q, want %q", i, ev.Text, tt.want[i])
				}
				if ev.Source != SourceServer {
					t.Errorf("event %d source = %q", i, ev.Source)
				}
				if ev.Time.IsZero() {
					t.Errorf("event %d has no timestamp", i)
				}
			}
		})
	}
}

func TestPipeReader_LongLineSplit(t *testing.T) {
	input := strings.Repeat("z", MaxLineLength+10) + "\n"
	events := collect(t, strings.NewReader(input), "bot", SeverityError)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if len(events[0].Text) != MaxLineLength || len(events[1].Text) != 10 {
		t.Errorf("split sizes = %d, %d", len(events[0].Text), len(events[1].Text))
	}
	for _, ev := range events {
		if ev.Severity != SeverityError {
			t.Errorf("severity = %v, want error", ev.Severity)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestPipeReader_ReadErrorSurfaced(t *testing.T) {
	events := collect(t, failingReader{}, SourceServer, SeverityNormal)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Severity != SeverityError || !strings.Contains(events[0].Text, "boom") {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestPipeReader_Stats(t *testing.T) {
	pr := NewPipeReader(strings.NewReader("ab\ncd\n"), SourceServer, SeverityNormal, func(Event) {})
	pr.Run()
	bytesRead, lines := pr.Stats()
	if lines != 2 || bytesRead != 6 {
		t.Errorf("Stats() = (%d, %d), want (6, 2)", bytesRead, lines)
	}
}

func TestDeliver(t *testing.T) {
	rec := &Recorder{}
	Deliver(rec, Event{Source: SourceServer, Severity: SeverityNormal, Text: "ready"})
	Deliver(rec, Event{Source: SourceServer, Severity: SeverityError, Text: "oops"})
	Deliver(rec, Event{Source: "alice", Severity: SeverityNormal, Text: "move"})
	Deliver(nil, Event{Text: "dropped"})

	if got := rec.Normal(); len(got) != 2 || got[0] != "ready" || got[1] != "[alice] move" {
		t.Errorf("Normal() = %q", got)
	}
	if got := rec.Errors(); len(got) != 1 || got[0] != "oops" {
		t.Errorf("Errors() = %q", got)
	}
}

func TestTee(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	tee := Tee{a, nil, b}
	tee.NormalOutput("x")
	tee.ErrorOutput("y")

	for _, r := range []*Recorder{a, b} {
		if len(r.Normal()) != 1 || len(r.Errors()) != 1 {
			t.Errorf("recorder got normal=%v errors=%v", r.Normal(), r.Errors())
		}
	}
}

func TestSeverity_String(t *testing.T) {
	if SeverityNormal.String() != "normal" || SeverityError.String() != "error" || Severity(7).String() != "unknown" {
		t.Error("unexpected Severity.String() output")
	}
}
