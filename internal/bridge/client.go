// Package bridge runs a host process and talks to it with line-delimited
// JSON over two dedicated pipes. The child reads requests from fd 3 and
// writes responses to fd 4, which leaves its stdout and stderr free for the
// host's own console output.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	// ErrClosed indicates a call after Close.
	ErrClosed = errors.New("bridge: client closed")

	// ErrExited indicates the host process went away mid-conversation.
	ErrExited = errors.New("bridge: host exited")
)

// RemoteError is an error reported by the host for one request.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: %s: %s", e.Method, e.Message)
}

type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	ShutdownMethod = "shutdown"
	maxLine        = 16 * 1024 * 1024
	closeTimeout   = 5 * time.Second
)

type Client struct {
	cmd *exec.Cmd
	req *os.File
	out *switchWriter

	mu     sync.Mutex
	nextID uint64
	closed bool

	responses chan response
	readErr   error
	exited    chan struct{}
	waitErr   error

	closeOnce sync.Once
	closeErr  error
}

// Start launches the host. Its stdout and stderr go to out until
// RedirectOutput says otherwise; a nil out discards them.
func Start(c Command, out io.Writer) (*Client, error) {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return nil, err
	}

	if out == nil {
		out = io.Discard
	}
	sw := &switchWriter{w: out}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	cmd.Stdout = sw
	cmd.Stderr = sw
	cmd.ExtraFiles = []*os.File{reqR, respW}

	if err := cmd.Start(); err != nil {
		reqR.Close()
		reqW.Close()
		respR.Close()
		respW.Close()
		return nil, fmt.Errorf("bridge: start %s: %w", c.Path, err)
	}
	// the child holds its own copies now
	reqR.Close()
	respW.Close()

	cl := &Client{
		cmd:       cmd,
		req:       reqW,
		out:       sw,
		responses: make(chan response, 1),
		exited:    make(chan struct{}),
	}
	go cl.readLoop(respR)
	go func() {
		cl.waitErr = cmd.Wait()
		close(cl.exited)
	}()
	return cl, nil
}

func (c *Client) readLoop(r io.ReadCloser) {
	defer r.Close()
	defer close(c.responses)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		var resp response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			c.readErr = fmt.Errorf("bridge: bad response line: %w", err)
			return
		}
		c.responses <- resp
	}
	c.readErr = sc.Err()
}

// Call sends one request and waits for its response. result may be nil when
// the caller does not need the payload. Calls are serialized.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.callLocked(ctx, method, params, result)
}

func (c *Client) callLocked(ctx context.Context, method string, params, result any) error {
	c.nextID++
	id := c.nextID

	line, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("bridge: encode %s: %w", method, err)
	}
	if _, err := c.req.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrExited, method, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-c.responses:
			if !ok {
				if c.readErr != nil {
					return fmt.Errorf("%w: %v", ErrExited, c.readErr)
				}
				return ErrExited
			}
			if resp.ID < id {
				// late answer to a call whose context was cancelled
				continue
			}
			if resp.ID != id {
				return fmt.Errorf("bridge: response id %d, want %d", resp.ID, id)
			}
			if resp.Error != "" {
				return &RemoteError{Method: method, Message: resp.Error}
			}
			if result != nil && len(resp.Result) > 0 {
				if err := json.Unmarshal(resp.Result, result); err != nil {
					return fmt.Errorf("bridge: decode %s result: %w", method, err)
				}
			}
			return nil
		}
	}
}

// RedirectOutput sends the host's stdout and stderr to w until the returned
// func is called.
func (c *Client) RedirectOutput(w io.Writer) func() {
	return c.out.swap(w)
}

// Close asks the host to shut down, then waits for it; a host that does not
// exit in time is killed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = c.callLocked(ctx, ShutdownMethod, nil, nil)
		c.closed = true
		c.req.Close()

		select {
		case <-c.exited:
		case <-time.After(closeTimeout):
			_ = c.cmd.Process.Kill()
			<-c.exited
		}
		var exitErr *exec.ExitError
		if c.waitErr != nil && !errors.As(c.waitErr, &exitErr) {
			c.closeErr = c.waitErr
		}
	})
	return c.closeErr
}

type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) swap(w io.Writer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.w = prev
	}
}
