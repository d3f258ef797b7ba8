package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Segment codes handled by the default extractors.
const (
	SegmentMSH = "MSH"
	SegmentPID = "PID"
	SegmentOBX = "OBX"
)

// Delimiters are fixed; the encoding characters in MSH-2 are not consulted.
const (
	FieldSeparator     = "|"
	ComponentSeparator = "^"
)

// Segment is one line of a message split on the field separator.
// Fields[0] is the segment code, so Fields[n] is field n of the segment
// (for MSH, Fields[n] is MSH-(n+1) because MSH-1 is the separator itself).
type Segment struct {
	Line   int
	Fields []string
}

// Code returns the segment code (Fields[0]).
func (s Segment) Code() string {
	if len(s.Fields) == 0 {
		return ""
	}
	return s.Fields[0]
}

// Field returns field i, or "" if the segment is shorter.
func (s Segment) Field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// Has reports whether field i is present, even if empty.
func (s Segment) Has(i int) bool {
	return i >= 0 && i < len(s.Fields)
}

// splitLines normalizes \r, \n and \r\n terminators and returns the
// trimmed, non-empty lines in order.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// newSegment splits a line into its fields.
func newSegment(lineNo int, line string) Segment {
	return Segment{Line: lineNo, Fields: strings.Split(line, FieldSeparator)}
}

// components splits a field on the component separator.
func components(field string) []string {
	return strings.Split(field, ComponentSeparator)
}

// component returns the i-th (0-based) component of field, or "".
func component(field string, i int) string {
	parts := components(field)
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// parseDate parses an exact YYYYMMDD date.
func parseDate(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, false
		}
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseTimestamp parses an HL7v2 timestamp (YYYYMMDD[HHmm[ss]]).
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
}
