// Package logrecord parses correlation-tagged log lines into structured records.
//
// A line has five significant whitespace-delimited fields:
//
//	<idA> <idB> <ignored> <yyyy-MM-ddTHH:mm:ss,fff> <LEVEL>:<message...>
//
// Everything after the fourth field is folded into the fifth. Parsing is total:
// malformed lines are reported as absent rather than as errors, so aggregation
// loops can skip them without branching on failures.
package logrecord

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// FieldCount is the number of significant fields in a log line.
const FieldCount = 5

// Field positions within a split line.
const (
	FieldPrimaryID   = 0
	FieldSecondaryID = 1
	FieldTimestamp   = 3
	FieldBody        = 4
)

// TimestampLayout is the fixed-width timestamp format (yyyy-MM-ddTHH:mm:ss,fff).
const TimestampLayout = "2006-01-02T15:04:05,000"

var (
	hexPattern   = regexp.MustCompile(`^[0-9A-Fa-f]+$`)
	zeroPattern  = regexp.MustCompile(`^0+$`)
	timestampLen = len(TimestampLayout)
)

// Record is a single accepted log line.
type Record struct {
	CorrelationID string
	Timestamp     time.Time
	Level         Level
	Message       string
}

// Split tokenizes a line into at most FieldCount whitespace-delimited fields.
// The last field holds the remainder of the line. Returns false when the line
// has fewer than FieldCount fields.
func Split(line string) ([]string, bool) {
	fields := make([]string, 0, FieldCount)
	rest := line
	for len(fields) < FieldCount-1 {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			return nil, false
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			fields = append(fields, rest)
			rest = ""
			continue
		}
		fields = append(fields, rest[:end])
		rest = rest[end:]
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, false
	}
	return append(fields, rest), true
}

// IsValidCorrelationID reports whether s is a non-empty hexadecimal string
// that is not all zeros.
func IsValidCorrelationID(s string) bool {
	return s != "" && hexPattern.MatchString(s) && !zeroPattern.MatchString(s)
}

// FoldID returns the case-folded identity of an id or topic. Two values with
// the same folded form are treated as the same key.
func FoldID(s string) string {
	// Casers are stateful, so one is created per call.
	return cases.Fold().String(s)
}

// ParseTimestamp parses a timestamp that must match TimestampLayout exactly.
func ParseTimestamp(s string) (time.Time, bool) {
	if len(s) != timestampLen {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Body splits the fifth field into its level prefix and the message after the
// first colon. ok is false when there is no colon or nothing follows it.
func Body(field string) (level, message string, ok bool) {
	idx := strings.IndexByte(field, ':')
	if idx < 0 || idx == len(field)-1 {
		return field, "", false
	}
	return field[:idx], strings.TrimSpace(field[idx+1:]), true
}

// LevelPrefix returns the text before the first colon of the fifth field,
// or the whole field when it has no colon.
func LevelPrefix(field string) string {
	if idx := strings.IndexByte(field, ':'); idx >= 0 {
		return field[:idx]
	}
	return field
}

// Parse turns a line into a Record, reading the correlation id from the field
// at idIndex. The line is rejected when it has too few fields, the id is
// invalid, or the timestamp does not parse.
func Parse(line string, idIndex int) (Record, bool) {
	fields, ok := Split(line)
	if !ok || idIndex < 0 || idIndex >= FieldTimestamp {
		return Record{}, false
	}

	id := fields[idIndex]
	if !IsValidCorrelationID(id) {
		return Record{}, false
	}

	ts, ok := ParseTimestamp(fields[FieldTimestamp])
	if !ok {
		return Record{}, false
	}

	body := fields[FieldBody]
	level, _ := ParseLevel(LevelPrefix(body))
	_, message, _ := Body(body)

	return Record{
		CorrelationID: id,
		Timestamp:     ts,
		Level:         level,
		Message:       message,
	}, true
}
