package logsink

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeHost struct {
	mu  sync.Mutex
	out io.Writer
}

func (h *fakeHost) RedirectOutput(w io.Writer) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.out
	h.out = w
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.out = prev
	}
}

func (h *fakeHost) print(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	io.WriteString(h.out, s)
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := Open(&buf, filepath.Join(t.TempDir(), "never.log"), true)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if s.IsFile() {
		t.Error("verbose sink should be the console")
	}

	s.Logger("[batch] ").Printf("hello")
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !strings.Contains(buf.String(), "[batch] ") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("unexpected console output %q", buf.String())
	}
}

func TestFileSinkCapturesHost(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "render.log")
	host := &fakeHost{out: &console}

	s, err := Open(&console, path, false)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	s.Capture(host)

	host.print("Fra:1\n")
	s.Logger("").Printf("progress")

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	host.print("after\n")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	if !strings.Contains(string(data), "Fra:1") || !strings.Contains(string(data), "progress") {
		t.Errorf("log file missing output: %q", data)
	}
	if console.String() != "after\n" {
		t.Errorf("expected only post-close output on console, got %q", console.String())
	}
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.log")
	if err := os.WriteFile(path, []byte("earlier\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := File(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	io.WriteString(s.Writer(), "later\n")
	s.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "earlier\nlater\n" {
		t.Errorf("expected appended log, got %q", data)
	}
}
