package nexus

import (
	"fmt"
	"strings"

	"github.com/scigolib/nexus/internal/idf"
	"github.com/scigolib/nexus/internal/source"
	"github.com/scigolib/nexus/internal/writer"
)

// Error kinds of the reading stages, re-exported for errors.As.
type (
	// ParseError reports a malformed instrument definition.
	ParseError = idf.ParseError
	// NotFoundError reports an element missing from the instrument definition.
	NotFoundError = idf.NotFoundError
	// IOError reports a source file that cannot be opened or read.
	IOError = source.IOError
	// FormatError reports a missing or mistyped source entry.
	FormatError = source.FormatError
)

// ErrOutputExists is returned under NoOverwrite when the output exists.
var ErrOutputExists = writer.ErrOutputExists

// MappingError reports a component that lacks a field its target group
// requires. Nothing has been written when it is returned.
type MappingError struct {
	Component string
	Kind      string
	Field     string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("component %q: %s group requires %s", e.Component, e.Kind, e.Field)
}

// VerifyError lists carried entries whose output payload differs from the
// payload that was carried.
type VerifyError struct {
	Output     string
	Mismatches []string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %d carried entries differ: %s", e.Output, len(e.Mismatches), strings.Join(e.Mismatches, ", "))
}
