package util

import (
	"errors"
	"io"
	"net"
	"strings"
)

// DefaultBufSize fits the largest UDP datagram.
const DefaultBufSize = 64 * 1024

// IsHarmless reports whether err is expected while a socket is being
// shut down and should end a read loop quietly.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// ToValidUTF8 repairs text received off the wire, replacing invalid
// byte sequences with U+FFFD.
func ToValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
