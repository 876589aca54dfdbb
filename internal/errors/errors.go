// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no usable token is available for a remote call.
	ErrNotAuthenticated = errors.New("not authenticated with GitHub")
	// ErrFileNotFound is only returned by the blob SHA lookup.
	ErrFileNotFound = errors.New("file not found")
	// ErrBusy is returned when a transition is attempted while another one is in flight.
	ErrBusy = errors.New("another request is in flight")
	// ErrNoToken is returned by the credential store when nothing is stored.
	ErrNoToken = errors.New("no token stored")
	// ErrSuperseded is returned when a result arrives after its request was abandoned.
	ErrSuperseded = errors.New("request was superseded")
)

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// PreconditionError reports an operation whose guard failed. It is never retried.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// Precondition builds a PreconditionError.
func Precondition(reason string) error {
	return &PreconditionError{Reason: reason}
}

// APIError is a non-success response from a remote HTTP API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: HTTP %d: %s", e.StatusCode, e.Body)
}

// NetworkError is a transport failure before any response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// GenerationError is returned only when neither the backend nor the templates produced files.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("code generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
