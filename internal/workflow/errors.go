package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current workflow state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrIndexOutOfRange is returned for a draft index outside the draft.
	ErrIndexOutOfRange = errors.New("question index out of range")
)

// GenerationError reports a failed, unparsable or short generator call.
type GenerationError struct {
	Op        string
	Requested int
	Got       int
	Raw       string
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: generation failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: only %d of %d questions were generated", e.Op, e.Got, e.Requested)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError reports operator input rejected before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError reports a repository read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// rawResponder is implemented by generator errors that carry the unparsed
// model output.
type rawResponder interface {
	RawResponse() string
}

func newGenerationError(op string, requested int, err error) *GenerationError {
	ge := &GenerationError{Op: op, Requested: requested, Err: err}
	var rr rawResponder
	if errors.As(err, &rr) {
		ge.Raw = rr.RawResponse()
	}
	return ge
}
