package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrHost indicates the host process rejected or failed a request.
	ErrHost = errors.New("engine: host request failed")

	// ErrUnknownObject indicates a lookup of an object the scene does not contain.
	ErrUnknownObject = errors.New("engine: unknown object")

	// ErrUnknownBody indicates a realtime body or shape id that was never created.
	ErrUnknownBody = errors.New("engine: unknown body")

	// ErrClosed indicates a call on an engine after Close.
	ErrClosed = errors.New("engine: closed")

	// ErrUnknownEngine indicates a driver name with no registered factory.
	ErrUnknownEngine = errors.New("engine: unknown engine")
)

// HostError carries the host's own message for a failed operation.
type HostError struct {
	Op      string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Op, e.Message)
}

func (e *HostError) Unwrap() error {
	return ErrHost
}
