package gatekeeper

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidResponse = errors.New("invalid model response")
	ErrNoCredentials   = errors.New("no model API keys or models configured")
)

// AttemptError is the failure of one (key, model) pair.
type AttemptError struct {
	KeyIndex int
	Model    string
	Err      error
}

func (a AttemptError) Error() string {
	return fmt.Sprintf("key#%d/%s: %v", a.KeyIndex+1, a.Model, a.Err)
}

// ExhaustedError means no (key, model) pair produced a session result.
type ExhaustedError struct {
	Attempts []AttemptError
	// Cause is set when iteration stopped early, e.g. on context cancellation.
	Cause error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	msg := fmt.Sprintf("all models exhausted after %d attempt(s)", len(e.Attempts))
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }
