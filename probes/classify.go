package probes

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// dialState names why a proxy check failed, for logging. A refused dial
// means nothing listens on the port; a timeout usually means a firewall
// drops the packets.
func dialState(err error) string {
	switch {
	case err == nil:
		return "open"
	case errors.Is(err, errTokenMismatch):
		return "not_a_proxy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case isConnectionRefused(err):
		return "closed"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "filtered"
	}
	return "rejected"
}

// isConnectionRefused checks if the error is a connection refused error.
func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	// Windows reports WSAECONNREFUSED under a different message.
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "actively refused")
}
