package gallery

import (
	"errors"
	"fmt"
)

var (
	ErrNoFile       = errors.New("choose or drop a file")
	ErrNotConfirmed = errors.New("delete was not confirmed")
	// ErrSuperseded is returned by Refresh when a newer refresh was issued
	// before this one completed; its result was dropped.
	ErrSuperseded = errors.New("refresh superseded by a newer request")
)

// NetworkError is a request that never produced a usable response:
// connection refused, timeout, unreadable body.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RejectionError is a response from the store that reports failure, either
// through a non 2xx status or a success:false payload.
type RejectionError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectionError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s rejected (status %d): %s", e.Op, e.Status, e.Message)
}

const unknownFailure = "unknown"

// FailureMessage is the text shown to the user for a failed store call.
// Rejections surface the store's own message.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		if rejection.Message == "" {
			return unknownFailure
		}
		return rejection.Message
	}
	var network *NetworkError
	if errors.As(err, &network) {
		return network.Err.Error()
	}
	return err.Error()
}

// Outcome is the notice for a failed op, e.g. "Upload failed: too large".
// Network failures read "<op> error: ...".
func Outcome(op string, err error) string {
	var network *NetworkError
	if errors.As(err, &network) {
		return op + " error: " + FailureMessage(err)
	}
	return op + " failed: " + FailureMessage(err)
}
