package stream

import (
	"bufio"
	"io"
	"sync/atomic"
	"time"
)

// MaxLineLength is the longest line delivered as a single event.
// Longer lines are split.
const MaxLineLength = 64 * 1024

// EmitFunc receives each event read from a pipe.
type EmitFunc func(Event)

// PipeReader reads lines from a process stdout/stderr pipe and emits them
// as events in the order they were produced.
type PipeReader struct {
	reader   io.Reader
	source   string
	severity Severity
	emit     EmitFunc
	done     chan struct{}

	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// NewPipeReader creates a reader for one stream of one process.
func NewPipeReader(r io.Reader, source string, severity Severity, emit EmitFunc) *PipeReader {
	return &PipeReader{
		reader:   r,
		source:   source,
		severity: severity,
		emit:     emit,
		done:     make(chan struct{}),
	}
}

// Run reads until EOF. A final line without a newline is still emitted.
// Read errors other than EOF are emitted as error-severity events.
// Blocks; run it in its own goroutine.
func (p *PipeReader) Run() {
	defer close(p.done)

	scanner := bufio.NewScanner(p.reader)
	scanner.Buffer(make([]byte, 4096), MaxLineLength)
	scanner.Split(scanLinesSplitting)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1))
		p.linesRead.Add(1)
		p.emit(Event{
			Time:     time.Now(),
			Source:   p.source,
			Severity: p.severity,
			Text:     line,
		})
	}

	if err := scanner.Err(); err != nil {
		p.emit(Event{
			Time:     time.Now(),
			Source:   p.source,
			Severity: SeverityError,
			Text:     "output stream error: " + err.Error(),
		})
	}
}

// Done is closed when Run returns.
func (p *PipeReader) Done() <-chan struct{} {
	return p.done
}

// Stats returns bytes and lines read so far.
func (p *PipeReader) Stats() (bytesRead, linesRead int64) {
	return p.bytesRead.Load(), p.linesRead.Load()
}

// scanLinesSplitting behaves like bufio.ScanLines but hands back an
// over-long line in MaxLineLength pieces instead of failing with
// bufio.ErrTooLong.
func scanLinesSplitting(data []byte, atEOF bool) (advance int, token []byte, err error) {
	advance, token, err = bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= MaxLineLength {
		return MaxLineLength, data[:MaxLineLength], nil
	}
	return advance, token, err
}
