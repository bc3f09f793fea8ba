// Package errors provides the gateway's error taxonomy.
//
// Only a BindError during bootstrap is fatal.  TransportErrors are
// routine (the peer may simply not be listening), HandlerFaults are
// isolated to a single command or event, and ConfigErrors are reported
// and then replaced by defaults.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected = errors.New("no peer connected")
	ErrClosed       = errors.New("endpoint is closed")
	ErrCircuitOpen  = errors.New("circuit breaker is open")
)

// ── Structured error types ───────────────────────────────────────────

// BindError reports that a port could not be acquired.
type BindError struct {
	Network string // "tcp" or "udp"
	Port    int
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s port %d: %v", e.Network, e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// TransportError represents a failed send or dial towards a peer.
type TransportError struct {
	Op       string // "send", "dial", "write"
	Endpoint string // endpoint name, e.g. "udp-client"
	Addr     string // remote address, if known
	Err      error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s %s: %v", e.Endpoint, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Endpoint, e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandlerFault records a failure inside one command handler or one
// event translation.
type HandlerFault struct {
	Command string // command address or event kind
	Client  string // originating client id, empty for events
	Err     error
}

func (e *HandlerFault) Error() string {
	if e.Client == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s from %s: %v", e.Command, e.Client, e.Err)
}

func (e *HandlerFault) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Bind creates a BindError.
func Bind(network string, port int, err error) *BindError {
	return &BindError{Network: network, Port: port, Err: err}
}

// Transport creates a TransportError.
func Transport(op, endpoint, addr string, err error) *TransportError {
	return &TransportError{Op: op, Endpoint: endpoint, Addr: addr, Err: err}
}

// Fault creates a HandlerFault.
func Fault(command, client string, err error) *HandlerFault {
	return &HandlerFault{Command: command, Client: client, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsPeerUnreachable reports whether err means nobody is listening on
// the other side: refused, reset, broken pipe, or no connected client.
func IsPeerUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// IsAddrInUse reports whether err is an "address already in use" bind
// failure.
func IsAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use oscgate/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
