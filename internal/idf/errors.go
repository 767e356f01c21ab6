package idf

import "fmt"

// ParseError reports a definition that is not well-formed XML or does not
// follow the instrument definition layout.
type ParseError struct {
	File string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.File
	if loc == "" {
		loc = "instrument definition"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError reports an expected element that the definition lacks.
type NotFoundError struct {
	What string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("no %s in instrument definition", e.What)
	}
	return fmt.Sprintf("%s %q not found in instrument definition", e.What, e.Name)
}
