package index

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every [ParseError].
var ErrMalformed = errors.New("malformed snapshot table")

// ParseError reports a snapshot table that cannot be decoded. Line is 1-based
// and zero when the error concerns the table as a whole.
type ParseError struct {
	Table  string
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Table
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match [ErrMalformed].
func (e *ParseError) Is(target error) bool { return target == ErrMalformed }
