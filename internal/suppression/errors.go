package suppression

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// SinkError is returned when a sink refuses or fails to record an address.
// Transient marks failures a later attempt may get past.
type SinkError struct {
	Sink       string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *SinkError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := e.Sink + " suppression failed"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SinkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed hand-off is worth retrying.
func IsTransient(err error) bool {
	var (
		sinkErr *SinkError
		netErr  net.Error
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &sinkErr):
		return sinkErr.Transient
	case errors.As(err, &netErr):
		return netErr.Timeout()
	default:
		return false
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError && statusCode < 600
}
