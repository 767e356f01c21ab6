package source

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks a dataset whose type, dataspace or values cannot be
// read back exactly.
var ErrUnsupported = errors.New("unsupported dataset")

// IOError reports a source file that cannot be opened or read.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatError reports an entry that is missing or not of the expected kind
// or type.
type FormatError struct {
	Path string
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("source entry %s: %s", e.Path, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }
