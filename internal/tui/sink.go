package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-borg-arena/internal/orchestrator"
)

// Sink forwards output, warnings and round events to a running program.
// Messages sent before Attach are dropped.
//
// Program.Send blocks until the event loop takes the message, so a Sink
// must not be called from inside Update.
type Sink struct {
	mu sync.RWMutex
	p  *tea.Program
}

// NewSink creates a detached Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Attach sets the program that receives messages.
func (s *Sink) Attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *Sink) send(msg tea.Msg) {
	s.mu.RLock()
	p := s.p
	s.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// NormalOutput implements stream.Sink.
func (s *Sink) NormalOutput(text string) {
	s.send(OutputMsg{Text: text})
}

// ErrorOutput implements stream.Sink.
func (s *Sink) ErrorOutput(text string) {
	s.send(OutputMsg{Text: text, Error: true})
}

// Warn implements orchestrator.Warner.
func (s *Sink) Warn(title, message string) {
	s.send(WarnMsg{Title: title, Message: message})
}

// Callbacks returns round callbacks that notify the program.
func (s *Sink) Callbacks() orchestrator.Callbacks {
	return orchestrator.Callbacks{
		OnRoundStart: func(r orchestrator.Round) { s.send(RoundStartedMsg{Round: r}) },
		OnRoundOver:  func(res orchestrator.MatchResult) { s.send(RoundOverMsg{Result: res}) },
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
