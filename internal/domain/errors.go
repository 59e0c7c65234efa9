package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInsufficientInput    = errors.New("insufficient input")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrInconsistentBundle   = errors.New("inconsistent bundle")
	ErrInvalidArgument      = errors.New("invalid argument")

	// ErrGenerationUnavailable is returned when the answer model cannot be reached.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// StageError reports which pipeline stage failed and on what input.
type StageError struct {
	Stage string
	Input string
	Err   error
}

func (e *StageError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s [input=%s]: %v", e.Stage, e.Input, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage and input context.
func NewStageError(stage, input string, err error) *StageError {
	return &StageError{Stage: stage, Input: input, Err: err}
}

// Preview shortens s for use as StageError input.
func Preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
