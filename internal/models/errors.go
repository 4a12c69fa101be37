package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	ErrInvariantViolation      = errors.New("invariant violation")
	ErrEventNotFound           = errors.New("sos event not found")
	ErrIllegalStatusTransition = errors.New("illegal sos event status transition")
	ErrContactNotFound         = errors.New("contact not found")
	ErrEmptyContactName        = errors.New("contact name cannot be empty")
	ErrInvalidPhoneNumber      = errors.New("phone number must contain only digits with an optional leading '+'")
	ErrNoMessagingCapability   = errors.New("no messaging capability configured")
	ErrLocationUnavailable     = errors.New("location unavailable")
)

// InvariantError reports an attempt to apply a transition that is illegal in the
// current engine state. The transition is rejected without side effects.
type InvariantError struct {
	Op    string
	State StatePhase
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s not allowed in state %s", e.Op, e.State)
}

// Is reports whether target is ErrInvariantViolation.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// ConfigurationError describes a missing or malformed piece of configuration.
// It is surfaced as a warning; activation proceeds without the affected capability.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// TransientError wraps a recoverable failure of an external capability
// (messaging, location). It never aborts the state machine.
type TransientError struct {
	Capability string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s capability failed: %v", e.Capability, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
