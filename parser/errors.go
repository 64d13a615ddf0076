package parser

import (
	"errors"
	"fmt"
)

// ErrNoHistory is returned when a page carries no version history at all.
var ErrNoHistory = errors.New("no changelog data found")

// ExtractError reports that the embedded page payload could not be located
// or decoded.
type ExtractError struct {
	Reason string
	Err    error
}

func (e *ExtractError) Error() string {
	if e.Err == nil {
		return "extract: " + e.Reason
	}
	return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// FieldMissingError reports a key path that is absent or has the wrong shape.
type FieldMissingError struct {
	Path string
}

func (e *FieldMissingError) Error() string {
	return "missing field " + e.Path
}

// DateParseError reports a release timestamp that does not match
// ReleaseTimestampLayout.
type DateParseError struct {
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse release date %q: %v", e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}
