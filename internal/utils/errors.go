package utils

import "fmt"

// StageError records which conversion step or object an error came from.
type StageError struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *StageError) Unwrap() error {
	return e.Cause
}

// WrapError attaches context to cause. A nil cause stays nil so call sites
// can wrap unconditionally.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StageError{
		Context: context,
		Cause:   cause,
	}
}

// WrapErrorf is WrapError with a formatted context.
func WrapErrorf(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &StageError{
		Context: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}
