// Package diagnostics implements the append-only diagnostic log.
//
// The Sink is a side channel: Log never blocks and never fails the caller.
// Lines are queued on a buffered channel and written by a single goroutine
// to every configured writer (typically the log file and stderr).
package diagnostics

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TimestampFormat is RFC 3339 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// DefaultBuffer is the number of lines queued before new lines are dropped.
const DefaultBuffer = 1024

// Sink is a fire-and-forget, timestamped line log.
type Sink struct {
	writers []io.Writer
	closers []io.Closer
	redact  func(string) string
	now     func() time.Time
	buffer  int

	lines chan string
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped     atomic.Uint64
	writeErrors atomic.Uint64
}

// Option configures a Sink.
type Option func(*Sink)

// WithWriter adds a destination. Writers are written in the order they are added.
func WithWriter(w io.Writer) Option {
	return func(s *Sink) {
		if w != nil {
			s.writers = append(s.writers, w)
		}
	}
}

// WithFile adds an append-only file destination that is closed together with the Sink.
func WithFile(f *os.File) Option {
	return func(s *Sink) {
		if f != nil {
			s.writers = append(s.writers, f)
			s.closers = append(s.closers, f)
		}
	}
}

// WithRedactor sets a function applied to every line before it is queued.
func WithRedactor(fn func(string) string) Option {
	return func(s *Sink) {
		s.redact = fn
	}
}

// WithBuffer sets the queue length.
func WithBuffer(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		s.now = now
	}
}

// New creates a Sink and starts its writer goroutine.
func New(opts ...Option) *Sink {
	s := &Sink{
		now:    time.Now,
		buffer: DefaultBuffer,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lines = make(chan string, s.buffer)
	go s.run()
	return s
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostic log: %w", err)
	}
	return f, nil
}

// Log queues a timestamped line. It never blocks: when the queue is full the line is dropped.
func (s *Sink) Log(msg string) {
	if s == nil {
		return
	}
	if s.redact != nil {
		msg = s.redact(msg)
	}
	line := s.now().UTC().Format(TimestampFormat) + ": " + strings.TrimRight(msg, "\n") + "\n"

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.lines <- line:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of lines discarded because the queue was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// WriteErrors returns the number of failed writes across all writers.
func (s *Sink) WriteErrors() uint64 {
	return s.writeErrors.Load()
}

// Close drains the queue, stops the writer goroutine and closes owned files.
// It is safe to call more than once.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.lines)
	s.mu.Unlock()

	<-s.done

	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) run() {
	defer close(s.done)
	for line := range s.lines {
		for _, w := range s.writers {
			if _, err := io.WriteString(w, line); err != nil {
				s.writeErrors.Add(1)
			}
		}
	}
}
