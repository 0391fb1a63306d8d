package solver

import (
	"errors"
	"fmt"
)

// Error kinds for draw solving. Invalid input is always detected before any
// search work; impossible covers both the per-participant pre-check and full
// backtracking exhaustion.
const (
	KindInvalidInput = "invalid_input"
	KindImpossible   = "draw_impossible"
	KindTimeout      = "draw_timeout"
)

// DrawError is the typed failure returned by the solving pipeline.
type DrawError struct {
	Kind    string
	Message string
}

func (e *DrawError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func invalidInputf(format string, args ...any) *DrawError {
	return &DrawError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func impossiblef(format string, args ...any) *DrawError {
	return &DrawError{Kind: KindImpossible, Message: fmt.Sprintf(format, args...)}
}

// IsInvalidInput reports whether err is a DrawError with the invalid input kind.
func IsInvalidInput(err error) bool {
	return hasKind(err, KindInvalidInput)
}

// IsImpossible reports whether err is a DrawError for an infeasible configuration.
func IsImpossible(err error) bool {
	return hasKind(err, KindImpossible)
}

// IsTimeout reports whether err is a DrawError for an expired search deadline.
func IsTimeout(err error) bool {
	return hasKind(err, KindTimeout)
}

func hasKind(err error, kind string) bool {
	var de *DrawError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
