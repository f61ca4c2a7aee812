package logrecord

import (
	"fmt"
	"strings"
)

// Level is a log severity.
type Level int

// Known levels, in whole-line classification priority order.
const (
	LevelUnknown Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelTrace
)

// DefaultLevels is the ordered level set used when none is configured.
var DefaultLevels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelTrace}

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelTrace: "TRACE",
}

// String returns the canonical upper-case name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Keywords returns the substrings that classify a whole line as this level.
func (l Level) Keywords() []string {
	if l == LevelTrace {
		return []string{"TRACE", "VERBOSE"}
	}
	if l == LevelUnknown {
		return nil
	}
	return []string{l.String()}
}

// ParseLevel maps a level name, case-insensitively, to a Level. Surrounding
// whitespace is not stripped, so "INFO " is not a level.
func ParseLevel(s string) (Level, bool) {
	upper := strings.ToUpper(s)
	for level, name := range levelNames {
		if name == upper {
			return level, true
		}
	}
	return LevelUnknown, false
}

// ParseLevels parses an ordered list of level names.
func ParseLevels(names []string) ([]Level, error) {
	levels := make([]Level, 0, len(names))
	seen := make(map[Level]bool, len(names))
	for _, name := range names {
		level, ok := ParseLevel(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", name)
		}
		if seen[level] {
			return nil, fmt.Errorf("duplicate log level %q", name)
		}
		seen[level] = true
		levels = append(levels, level)
	}
	return levels, nil
}

// ClassifyLine returns the first level in levels whose keyword occurs in the
// line, compared case-insensitively.
func ClassifyLine(line string, levels []Level) (Level, bool) {
	upper := strings.ToUpper(line)
	for _, level := range levels {
		for _, kw := range level.Keywords() {
			if strings.Contains(upper, kw) {
				return level, true
			}
		}
	}
	return LevelUnknown, false
}
