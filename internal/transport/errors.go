package transport

import (
	"errors"
	"fmt"
)

// Error is a transport-level failure on an individual HTTP call. The retry
// policy for these lives in the orchestrator, never here.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport %s failed", e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a transport Error from an error chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
