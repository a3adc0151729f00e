package synthesis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. Every kind is recoverable: the
// engine logs, skips the failed item or batch, and keeps going. A run
// never propagates a panic or aborts on a single bad response.
type ErrorKind string

const (
	ErrTransport   ErrorKind = "transport"   // LLM call did not succeed
	ErrParse       ErrorKind = "parse"       // response not recoverable as JSON
	ErrValidation  ErrorKind = "validation"  // parsed JSON is schema-invalid (advisory)
	ErrPersistence ErrorKind = "persistence" // storage write failed
)

// ErrRunInProgress is returned when a synthesis run is requested for a
// project that already has one running.
var ErrRunInProgress = errors.New("synthesis run already in progress for this project")

// PipelineError is the one error type that crosses component boundaries
// inside the pipeline. Preview carries the head of the raw LLM response
// on parse failures so operators can see what the model actually said.
type PipelineError struct {
	Kind    ErrorKind
	Op      string
	Err     error
	Preview string
}

func (e *PipelineError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("%s: %s: %v (response preview: %q)", e.Kind, e.Op, e.Err, e.Preview)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// KindOf returns the pipeline kind of err, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
