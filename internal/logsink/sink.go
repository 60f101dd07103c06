// Package logsink selects where a driver's progress output and its host
// engine's console chatter end up: the console, or a log file that replaces
// it for the duration of a scope.
package logsink

import (
	"io"
	"log"
	"os"
	"sync"
)

// Redirector is satisfied by engines that can retarget their host's output.
type Redirector interface {
	RedirectOutput(w io.Writer) (restore func())
}

// Sink is an output destination. Close restores any captured host output
// and closes the backing file; it is safe to call more than once.
type Sink struct {
	w    io.Writer
	file *os.File

	mu       sync.Mutex
	restores []func()
	closed   bool
}

// Console writes to w, which the caller keeps ownership of.
func Console(w io.Writer) *Sink {
	return &Sink{w: w}
}

// File appends to the log file at path, creating it if needed.
func File(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Sink{w: f, file: f}, nil
}

// Open picks the console when verbose and the log file otherwise.
func Open(console io.Writer, logPath string, verbose bool) (*Sink, error) {
	if verbose {
		return Console(console), nil
	}
	return File(logPath)
}

func (s *Sink) Writer() io.Writer {
	return s.w
}

func (s *Sink) IsFile() bool {
	return s.file != nil
}

// Logger returns a logger writing to the sink with the given prefix.
func (s *Sink) Logger(prefix string) *log.Logger {
	return log.New(s.w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Capture sends r's host output into the sink until Close.
func (s *Sink) Capture(r Redirector) {
	restore := r.RedirectOutput(s.w)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restores = append(s.restores, restore)
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for i := len(s.restores) - 1; i >= 0; i-- {
		s.restores[i]()
	}
	s.restores = nil

	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
