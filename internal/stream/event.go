// Package stream carries process output from supervised processes to
// output sinks.
//
// Output is split into lines as it arrives. A trailing partial line is held
// until a newline or end of stream, whichever comes first, so a line written
// right before exit is never truncated.
package stream

import (
	"sync"
	"time"
)

// Severity tags an output event as normal or error output.
type Severity int

const (
	// SeverityNormal is standard output.
	SeverityNormal Severity = iota

	// SeverityError is standard error, or a diagnostic raised by the arena itself.
	SeverityError
)

// String returns "normal" or "error".
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one chunk of process output.
type Event struct {
	Time     time.Time
	Source   string // "server" or a bot name
	Severity Severity
	Text     string
}

// Sink receives output text. Implementations must be safe for concurrent use.
type Sink interface {
	NormalOutput(text string)
	ErrorOutput(text string)
}

// Deliver routes ev to the sink method matching its severity.
// Output from sources other than the server is prefixed with the source name.
func Deliver(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	text := ev.Text
	if ev.Source != "" && ev.Source != SourceServer {
		text = "[" + ev.Source + "] " + text
	}
	if ev.Severity == SeverityError {
		sink.ErrorOutput(text)
		return
	}
	sink.NormalOutput(text)
}

// SourceServer is the Source of events produced by the tournament server.
const SourceServer = "server"

// Tee fans output out to several sinks, in order.
type Tee []Sink

// NormalOutput implements Sink.
func (t Tee) NormalOutput(text string) {
	for _, s := range t {
		if s != nil {
			s.NormalOutput(text)
		}
	}
}

// ErrorOutput implements Sink.
func (t Tee) ErrorOutput(text string) {
	for _, s := range t {
		if s != nil {
			s.ErrorOutput(text)
		}
	}
}

// Recorder is an in-memory Sink, mostly useful in tests.
type Recorder struct {
	mu     sync.Mutex
	normal []string
	errors []string
}

// NormalOutput implements Sink.
func (r *Recorder) NormalOutput(text string) {
	r.mu.Lock()
	r.normal = append(r.normal, text)
	r.mu.Unlock()
}

// ErrorOutput implements Sink.
func (r *Recorder) ErrorOutput(text string) {
	r.mu.Lock()
	r.errors = append(r.errors, text)
	r.mu.Unlock()
}

// Normal returns a copy of the recorded normal output.
func (r *Recorder) Normal() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.normal...)
}

// Errors returns a copy of the recorded error output.
func (r *Recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.normal = nil
	r.errors = nil
	r.mu.Unlock()
}

var (
	_ Sink = Tee(nil)
	_ Sink = (*Recorder)(nil)
)
