package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Session.Send when the session is not open.
	// Nothing is written to the transport in that case.
	ErrNotConnected = errors.New("session not connected")

	// ErrInvalidArgument is returned when a required argument is missing.
	// It is always returned before any network I/O happens.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransportError reports a failure that happened before a well-formed
// envelope could be obtained: the request could not be sent, the connection
// broke, the call timed out, or the body was not a valid envelope.
type TransportError struct {
	// Op is the client operation that failed (e.g. "list agents").
	Op string
	// StatusCode is the HTTP status code, or 0 if no response was received.
	StatusCode int
	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError reports an envelope returned with status "error".
// Message is the human-readable text provided by the server.
type RemoteError struct {
	Op         string
	Message    string
	Timestamp  string
	StatusCode int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Op, e.Message)
}

// invalidArgument builds an ErrInvalidArgument for a missing field.
func invalidArgument(op, field string) error {
	return fmt.Errorf("%s: %s is required: %w", op, field, ErrInvalidArgument)
}
