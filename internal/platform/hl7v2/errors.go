package hl7v2

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when Parse is called with an empty message.
var ErrEmptyInput = errors.New("hl7v2: message cannot be empty")

// FormatError reports a message that fails structural validation.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "hl7v2: invalid message format: " + e.Reason
}

// SkipError is returned by an extractor that declines a segment because
// it has fewer fields than the extractor needs. The parser turns it into
// a Warning instead of failing the message.
type SkipError struct {
	Segment  string
	Required int
	Got      int
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s segment skipped: needs at least %d fields, got %d", e.Segment, e.Required, e.Got)
}

// IsParseError reports whether err is one of the structural parse failures
// (empty input or invalid format).
func IsParseError(err error) bool {
	var fe *FormatError
	return errors.Is(err, ErrEmptyInput) || errors.As(err, &fe)
}
