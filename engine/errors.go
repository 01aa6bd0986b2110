package engine

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrStopped is returned by every wait once the run flag is cleared
var ErrStopped = errors.New("engine stopped")

// SetupError means a capture or send resource could not be opened. Fatal.
type SetupError struct {
	Resource string
	Err      error
}

func NewSetupError(resource string, err error) *SetupError {
	return &SetupError{Resource: resource, Err: err}
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %v: %v", e.Resource, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// PhaseTimeout means the awaited packet was not captured in time.
// It aborts the current session only.
type PhaseTimeout struct {
	Phase   string
	Timeout time.Duration
}

func (e *PhaseTimeout) Error() string {
	return fmt.Sprintf("phase %v timed out after %v", e.Phase, e.Timeout)
}

// UnexpectedPeerBehavior covers ack mismatches and RSTs from the peer.
type UnexpectedPeerBehavior struct {
	Phase  string
	Reason string
}

func (e *UnexpectedPeerBehavior) Error() string {
	return fmt.Sprintf("unexpected peer behavior in %v: %v", e.Phase, e.Reason)
}

// TransientSendError wraps a failed emission, the session is aborted.
type TransientSendError struct {
	Phase string
	Err   error
}

func (e *TransientSendError) Error() string {
	return fmt.Sprintf("send failed in %v: %v", e.Phase, e.Err)
}

func (e *TransientSendError) Unwrap() error {
	return e.Err
}

func IsPhaseTimeout(err error) bool {
	var target *PhaseTimeout
	return errors.As(err, &target)
}

func IsSetupError(err error) bool {
	var target *SetupError
	return errors.As(err, &target)
}
