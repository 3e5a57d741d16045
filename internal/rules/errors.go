package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned by a handler given a rule variant it
	// does not evaluate.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrMalformedRecord = errors.New("rule record is not a JSON object")
	ErrMissingField    = errors.New("field required")
	ErrFieldType       = errors.New("invalid field type")
)

// BuildError reports why a single rule record could not be constructed.
type BuildError struct {
	Name  string
	Type  string
	Field string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("build rule %q (type %q): %v", e.Name, e.Type, e.Err)
	}
	return fmt.Sprintf("build rule %q (type %q): %s: %v", e.Name, e.Type, e.Field, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// PatternError reports a rule pattern that failed to compile.
type PatternError struct {
	Rule    string
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("rule %q: invalid pattern %q: %v", e.Rule, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
