package core

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request before a run starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ToolError is a failed tool invocation. It is folded into the transcript
// and never aborts the run.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// TransportError is a failure talking to the model service.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrSkipped answers calls that were never run because the turn ended early.
var ErrSkipped = errors.New("skipped: run already finished")

// ErrNoDossier is the reason reported when the budget ran out without a
// completed dossier.
var ErrNoDossier = errors.New("No structured dossier was generated. The AI may not have used the tools correctly.")
