package amqp

import (
	"strings"
	"time"
)

const maxBackoff = 30 * time.Second

// exponentialBackoff returns the wait before reconnect attempt n, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isConnectionError reports whether err means the broker connection is gone.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed", "message channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Backoff exposes the reconnect delay to the worker loop.
func Backoff(attempt int) time.Duration { return exponentialBackoff(attempt) }

// IsConnectionError exposes the connection-loss check to the worker loop.
func IsConnectionError(err error) bool { return isConnectionError(err) }
