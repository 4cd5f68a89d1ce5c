package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTimestamp means a position record has no timestamp context line
	ErrMissingTimestamp = errors.New("missing timestamp context line")
	ErrTooFewFields     = errors.New("too few fields")
	ErrBadNumber        = errors.New("non-numeric field")
	ErrMissingCallsign  = errors.New("empty callsign")
	ErrMalformed        = errors.New("malformed record")
)

// LineError describes a skipped line. Line is 1-based.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}
