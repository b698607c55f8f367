package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectivity indicates the network probe failed before any upload work started.
	ErrConnectivity = errors.New("no connectivity")
	// ErrTransport indicates an individual HTTP call failed mid-attempt.
	ErrTransport = errors.New("transport error")
	// ErrReconciliation indicates missing chunks persisted after the bounded retry round.
	ErrReconciliation = errors.New("reconciliation failure")
	// ErrProcessing indicates the backend reported the job failed.
	ErrProcessing = errors.New("processing failure")
	// ErrTimeout indicates the poll attempt budget was exhausted.
	ErrTimeout = errors.New("processing timeout")
	// ErrCancelled indicates the caller cancelled the attempt; not a true failure.
	ErrCancelled = errors.New("cancelled by caller")
	// ErrConfiguration indicates invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates a recording or chunk could not be located.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Resumable reports whether an upload attempt that ended with err left the
// recording in a state a later attempt can pick back up without re-sending
// acknowledged chunks.
func Resumable(err error) bool {
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrTimeout), errors.Is(err, ErrReconciliation):
		return true
	default:
		return false
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
