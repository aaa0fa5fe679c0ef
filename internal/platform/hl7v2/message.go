package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

const (
	// FieldSeparator splits a segment line into fields.
	FieldSeparator = "|"

	// ComponentSeparator splits a field into components.
	ComponentSeparator = "^"
)

// SplitSegments splits a raw HL7v2 message into segment lines.
// Only the outer whitespace of the message is trimmed; individual lines are
// left untouched. \r\n, \n and \r are all accepted as segment terminators.
// A leading byte order mark is dropped. An empty or whitespace-only message
// yields no lines.
func SplitSegments(raw string) []string {
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF"))
	if text == "" {
		return nil
	}

	// Normalize line endings: replace \r\n with \n, then replace \r with \n
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	return strings.Split(text, "\n")
}

// Fields is one segment line split on the field separator.
// Fields[0] is the segment tag, never a data field.
//
// Positions index the split line directly. For MSH that is one less than the
// HL7 field number, because MSH-1 is the separator itself: Fields[1] holds the
// encoding characters (MSH-2) and Fields[8] the message type (MSH-9).
type Fields []string

// SplitFields splits a single segment line into its fields.
func SplitFields(line string) Fields {
	return Fields(strings.Split(line, FieldSeparator))
}

// Tag returns the segment tag (e.g. "PID"), or "" for an empty line.
func (f Fields) Tag() string {
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Get returns the field at pos, or "" when pos is out of range.
func (f Fields) Get(pos int) string {
	if pos < 1 || pos >= len(f) {
		return ""
	}
	return f[pos]
}

// Components returns the field at pos split on the component separator.
// A missing field yields a single empty component.
func (f Fields) Components(pos int) []string {
	return strings.Split(f.Get(pos), ComponentSeparator)
}

// Component returns the n-th (0-based) component of the field at pos, or ""
// when either the field or the component is absent.
func (f Fields) Component(pos, n int) string {
	return component(f.Components(pos), n)
}

// Len returns the number of data fields, excluding the tag.
func (f Fields) Len() int {
	if len(f) == 0 {
		return 0
	}
	return len(f) - 1
}

func component(parts []string, n int) string {
	if n < 0 || n >= len(parts) {
		return ""
	}
	return parts[n]
}

// parseHL7Timestamp parses an HL7v2 timestamp string (YYYYMMDDHHmmss, YYYYMMDDHHmm or YYYYMMDD).
// Fractional seconds and timezone offsets are ignored; anything else after the
// digits is rejected.
func parseHL7Timestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".+-"); i > 0 {
		s = s[:i]
	}
	switch len(s) {
	case 14:
		return time.Parse("20060102150405", s)
	case 12:
		return time.Parse("200601021504", s)
	case 8:
		return time.Parse("20060102", s)
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
}
