package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted marks a request canceled because something newer superseded
// it. Aborts are not failures and are never shown to the user.
var ErrAborted = errors.New("request aborted")

// TransportError is a request that did not produce a usable response:
// connectivity, timeout, HTTP status or malformed body.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: communication error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError is a well-formed response whose status is not "ok".
type BackendError struct {
	Op      string
	Status  string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend status %q: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: backend status %q", e.Op, e.Status)
}

// IsAborted reports whether err comes from a superseded request.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

// IsTransport reports whether err is a communication failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && !IsAborted(err)
}

// IsBackend reports whether err is a logical backend failure.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// contextError classifies a context error: cancellation is an abort,
// anything else (deadline) a transport failure.
func contextError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrAborted)
	}
	return &TransportError{Op: op, Err: err}
}
